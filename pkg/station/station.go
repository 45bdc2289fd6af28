// Package station runs the production line: it waits for a board,
// flashes it through the ROM bootloader, tests it over the firmware
// shell and files a log and a result per board.
package station

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/amber-eeg/prodloader/pkg/cli/sh"
	"github.com/amber-eeg/prodloader/pkg/config"
	"github.com/amber-eeg/prodloader/pkg/env"
	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/hexfile"
	"github.com/amber-eeg/prodloader/pkg/record"
	"github.com/amber-eeg/prodloader/pkg/report"
	"github.com/amber-eeg/prodloader/pkg/serial"
)

// Baud rates of the board.
const (
	BootloaderBaud = 19200
	RuntimeBaud    = 921600
)

// StampLayout formats the session stamp, which prefixes assigned serial
// numbers and names the logs of failed boards.
const StampLayout = "200601021504"

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Station processes boards one after another.
type Station struct {
	Config    *config.Config
	Image     *hexfile.Image
	ImageName string
	ID        string
	Stamp     string

	Lister    serial.Lister
	Opener    serial.Opener
	Confirmer Confirmer
	Sink      record.Sink
	Reporter  report.Reporter
	Metrics   *report.Metrics
	// Console receives the operator log.
	Console io.Writer

	boards int
}

// New creates a Station on real serial ports. Boards already running
// firmware are not reprogrammed until Confirmer is replaced.
func New(conf *config.Config, image *hexfile.Image) *Station {
	id := conf.Station
	if id == "" {
		id = env.StationID()
	}
	return &Station{
		Config:    conf,
		Image:     image,
		ImageName: conf.Image,
		ID:        id,
		Stamp:     time.Now().Format(StampLayout),
		Lister:    serial.EnumeratorLister{USBOnly: conf.USBOnly},
		Opener:    serial.BugstOpener{},
		Confirmer: &sh.Fixed{},
		Sink:      &record.FileSink{Dir: conf.LogDir},
		Console:   os.Stdout,
	}
}

// Run processes boards until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	for {
		if _, err := s.RunBoard(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("waiting for board: %v", err)
			if err := fx.Sleep(ctx, s.Config.Timing.PollInterval); err != nil {
				return err
			}
		}
	}
}

// RunBoard waits for the next board and runs a session on it. A failed
// session is not an error: it is logged, saved and reported, and the
// result is returned. The error is only set when no board was found.
func (s *Station) RunBoard(ctx context.Context) (*report.Result, error) {
	rec := record.New(s.Console)
	rec.Log("Waiting for USB connect...")
	w := &serial.Watcher{Lister: s.Lister, Interval: s.Config.Timing.PollInterval}
	port, err := w.WaitForNewPort(ctx)
	if err != nil {
		return nil, err
	}
	sess := newSession(s, port, rec)
	glog.Infof("board on %s, session %s", port, sess.ID)
	rec.Log("Time started:" + sess.StartedAt.Format("2006-01-02 15:04:05"))
	err = sess.run(ctx)
	return s.finish(ctx, sess, err), nil
}

// finish releases the session, saves its log and reports its result.
func (s *Station) finish(ctx context.Context, sess *Session, err error) *report.Result {
	res := &report.Result{
		SessionID: sess.ID,
		Station:   s.ID,
		Port:      sess.Port,
		Serial:    sess.Serial,
		Firmware:  sess.Firmware,
		Outcome:   report.OutcomePass,
		Stage:     sess.Stage.String(),
		Frequency: sess.Frequency,
		StartedAt: sess.StartedAt,
	}
	name, appendMode := sess.Serial, sess.Append
	if err != nil {
		if fx.IsKind(err, fx.KindUserAbort) {
			res.Outcome = report.OutcomeAborted
			sess.Record.Log(err.Error())
		} else {
			res.Outcome = report.OutcomeFail
			res.Kind = fx.KindOf(err).String()
			res.Error = err.Error()
			sess.Record.Log(errorBanner(err))
			glog.Errorf("%s: %s failed: %v", sess.Port, sess.Stage, err)
		}
		if rerr := sess.release(); rerr != nil {
			glog.Warningf("%s: release: %v", sess.Port, rerr)
		}
		sess.Record.Log("Remove board and reconnect")
		name, appendMode = s.Stamp, true
	}
	if serr := s.Sink.Save(name, sess.Record.Lines(), appendMode); serr != nil {
		glog.Errorf("save log %s: %v", name, serr)
	}
	res.FinishedAt = time.Now()

	var reporters report.Reporters
	if s.Metrics != nil {
		reporters = append(reporters, s.Metrics)
	}
	if s.Reporter != nil {
		reporters = append(reporters, s.Reporter)
	}
	// a canceled ctx must not drop the result of the last board
	rctx, cancel := context.WithTimeout(context.Background(), report.DefaultPublishTimeout)
	defer cancel()
	if ctx.Err() == nil {
		rctx = ctx
	}
	if rerr := reporters.Report(rctx, res); rerr != nil {
		glog.Warningf("report %s: %v", sess.ID, rerr)
	}
	return res
}

// nextSerial assigns the next serial number of this station run.
func (s *Station) nextSerial() string {
	sn := fmt.Sprintf("%s-%04d", s.Stamp, s.boards)
	s.boards++
	return sn
}
