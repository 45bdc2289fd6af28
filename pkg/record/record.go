// Package record keeps the per-board operator log and persists it.
package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// Record is the ordered log of one board session.
type Record struct {
	// Echo receives each line as it is logged, typically the operator
	// console. May be nil.
	Echo io.Writer

	lock  sync.Mutex
	lines []string
}

// New creates a Record echoing to w.
func New(w io.Writer) *Record {
	return &Record{Echo: w}
}

// Logf appends a formatted line.
func (r *Record) Logf(format string, args ...interface{}) {
	r.Log(fmt.Sprintf(format, args...))
}

// Log appends lines verbatim.
func (r *Record) Log(lines ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, line := range lines {
		r.lines = append(r.lines, line)
		glog.V(1).Info(line)
		if r.Echo != nil {
			fmt.Fprintln(r.Echo, line)
		}
	}
}

// Lines returns a copy of the logged lines.
func (r *Record) Lines() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.lines...)
}

// Clear drops all lines.
func (r *Record) Clear() {
	r.lock.Lock()
	r.lines = nil
	r.lock.Unlock()
}

// Sink persists a finished record under name.
type Sink interface {
	Save(name string, lines []string, appendMode bool) error
}

// FileSink writes records to <Dir>/<name>.log.
type FileSink struct {
	Dir string
}

// Save implements Sink.
func (s *FileSink) Save(name string, lines []string, appendMode bool) error {
	name = strings.NewReplacer("\r", "", "\n", "").Replace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid log name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	path := filepath.Join(s.Dir, name+".log")
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteString("\n")
	}
	err = w.Flush()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		glog.Infof("saved %d lines to %s", len(lines), path)
	}
	return err
}

// MemorySink keeps saved records in memory.
type MemorySink struct {
	lock  sync.Mutex
	Saves []Saved
}

// Saved is one MemorySink.Save call.
type Saved struct {
	Name   string
	Lines  []string
	Append bool
}

// Save implements Sink.
func (s *MemorySink) Save(name string, lines []string, appendMode bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Saves = append(s.Saves, Saved{Name: name, Lines: append([]string(nil), lines...), Append: appendMode})
	return nil
}

// All returns a copy of the saves so far.
func (s *MemorySink) All() []Saved {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Saved(nil), s.Saves...)
}
