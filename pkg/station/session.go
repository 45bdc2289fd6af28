package station

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/amber-eeg/prodloader/pkg/bootloader"
	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/lineproto"
	"github.com/amber-eeg/prodloader/pkg/record"
	"github.com/amber-eeg/prodloader/pkg/serial"
)

// Session is the state of one board from port detection to log flush.
// It owns the open link and the receiver reading it.
type Session struct {
	ID        string
	Port      string
	Stage     Stage
	Record    *record.Record
	Firmware  string
	Serial    string
	Append    bool
	Reprogram bool
	Frequency float64
	StartedAt time.Time

	st   *Station
	link *serial.Link
	rx   *lineproto.Receiver
	cli  *lineproto.Client
	prog *bootloader.Programmer
	stop context.CancelFunc
}

func newSession(st *Station, port string, rec *record.Record) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Port:      port,
		Record:    rec,
		StartedAt: time.Now(),
		st:        st,
	}
}

func (s *Session) enter(stage Stage) {
	glog.V(1).Infof("%s: %s", s.Port, stage)
	s.Stage = stage
}

// openRuntime opens the port at the firmware baud rate and starts a
// receiver on it.
func (s *Session) openRuntime(ctx context.Context, readTimeout time.Duration) error {
	link, err := serial.Open(s.st.Opener, s.Port, serial.Mode{BaudRate: RuntimeBaud, ReadTimeout: readTimeout})
	if err != nil {
		return err
	}
	rctx, cancel := context.WithCancel(ctx)
	s.link = link
	s.rx = lineproto.NewReceiver(link)
	s.cli = lineproto.NewClient(link, s.rx)
	s.stop = cancel
	go func(rx *lineproto.Receiver) {
		if err := rx.Run(rctx); err != nil && rctx.Err() == nil {
			glog.Warningf("%s: receiver stopped: %v", s.Port, err)
		}
	}(s.rx)
	return nil
}

// openBootloader reopens the port at the bootloader baud rate with clean
// buffers.
func (s *Session) openBootloader() error {
	if err := s.release(); err != nil {
		glog.Warningf("%s: release: %v", s.Port, err)
	}
	link, err := serial.Open(s.st.Opener, s.Port, serial.Mode{
		BaudRate:    BootloaderBaud,
		ReadTimeout: s.st.Config.Timing.ReadTimeout,
	})
	if err != nil {
		return err
	}
	s.link = link
	if err := link.Flush(); err != nil {
		return err
	}
	s.prog = bootloader.New(link,
		bootloader.WithLogf(s.Record.Logf),
		bootloader.WithProgress(func(p bootloader.Progress) {
			s.Record.Logf("%d%% programmed", p.Percent)
		}))
	return nil
}

// release stops the receiver, gives it the settle delay to exit and
// closes the link. It is safe to call repeatedly.
func (s *Session) release() error {
	errs := &fx.AggregatedError{}
	if s.stop != nil {
		s.stop()
		select {
		case <-s.rx.Done():
		case <-time.After(s.st.Config.Timing.Settle):
			glog.Warningf("%s: receiver did not stop within %v", s.Port, s.st.Config.Timing.Settle)
		}
		s.stop, s.rx, s.cli = nil, nil, nil
	}
	if s.link != nil {
		errs.Add(s.link.Close())
		s.link = nil
	}
	s.prog = nil
	return errs.Aggregate()
}

// policy builds the retry policy of the current stage.
func (s *Session) policy(attempts int, timeout time.Duration, retryOn ...fx.Kind) fx.Policy {
	stage := s.Stage
	return fx.Policy{
		Attempts: attempts,
		Timeout:  timeout,
		RetryOn:  retryOn,
		OnRetry: func(attempt int, err error) {
			glog.V(1).Infof("%s: %s attempt %d: %v", s.Port, stage, attempt, err)
			if fx.IsKind(err, fx.KindTimeout) {
				s.Record.Log("Timed out, retrying...")
			} else {
				s.Record.Log("Failed, retrying")
			}
			if s.st.Metrics != nil {
				s.st.Metrics.Retried(stage.String())
			}
		},
	}
}

// query sends a shell command once, bounded by timeout.
func (s *Session) query(ctx context.Context, cmd string, timeout time.Duration) (lineproto.CliLine, error) {
	return s.cli.Query(ctx, cmd, fx.Policy{Attempts: 1, Timeout: timeout})
}

// queryRetried sends a shell command up to the configured query attempts.
func (s *Session) queryRetried(ctx context.Context, cmd string, timeout time.Duration) (lineproto.CliLine, error) {
	return s.cli.Query(ctx, cmd, s.policy(s.st.Config.Attempts.Query, timeout, fx.KindTimeout))
}
