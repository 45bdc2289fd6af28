package report

import (
	"context"
	"io"
	"sync"

	"github.com/golang/protobuf/jsonpb"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LedgerConfig configures the rotating results file.
type LedgerConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Ledger appends one JSON object per result.
type Ledger struct {
	w    io.WriteCloser
	lock sync.Mutex
	m    jsonpb.Marshaler
}

// NewLedger creates a Ledger rotating per cfg.
func NewLedger(cfg LedgerConfig) *Ledger {
	return NewLedgerWriter(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// NewLedgerWriter creates a Ledger over w.
func NewLedgerWriter(w io.WriteCloser) *Ledger {
	return &Ledger{w: w, m: jsonpb.Marshaler{OrigName: true}}
}

// Report implements Reporter.
func (l *Ledger) Report(ctx context.Context, r *Result) error {
	st, err := r.Struct()
	if err != nil {
		return err
	}
	s, err := l.m.MarshalToString(st)
	if err != nil {
		return err
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	_, err = io.WriteString(l.w, s+"\n")
	return err
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	return l.w.Close()
}
