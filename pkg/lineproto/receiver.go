package lineproto

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// Line prefixes.
const (
	CliPrefix  = "CLI:"
	DataPrefix = "DATA:"
)

const (
	readBufSize = 256
	maxLineLen  = 4096
	// CliQueueLen bounds pending CLI lines. When full the oldest is dropped.
	CliQueueLen = 8
)

// CliLine is a response line from the board shell, prefix included.
type CliLine string

// Text returns the line with the CLI prefix and anything before it removed.
func (l CliLine) Text() string {
	s := string(l)
	if i := strings.Index(s, CliPrefix); i >= 0 {
		return s[i+len(CliPrefix):]
	}
	return s
}

// DataLine is a streamed sample line, prefix included.
type DataLine string

// Receiver reads lines from a link until stopped.
type Receiver struct {
	r io.Reader

	cliCh  chan CliLine
	dataCh chan struct{}
	done   chan struct{}

	lock      sync.Mutex
	latest    DataLine
	capturing bool
	captured  []string
	dropped   int
}

// NewReceiver creates a Receiver reading from r. r must return (0, nil)
// or an error when no data arrives within its read timeout, so Run can
// observe cancellation.
func NewReceiver(r io.Reader) *Receiver {
	return &Receiver{
		r:      r,
		cliCh:  make(chan CliLine, CliQueueLen),
		dataCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run reads until ctx is done or the reader fails. Cancellation is
// observed between reads, so exit lags by at most one read timeout.
func (r *Receiver) Run(ctx context.Context) error {
	defer close(r.done)
	buf := make([]byte, readBufSize)
	var line []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.r.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '\r':
				r.dispatch(string(line))
				line = line[:0]
			case '\n':
			default:
				if len(line) >= maxLineLen {
					glog.Warningf("line exceeds %d bytes, discarded", maxLineLen)
					line = line[:0]
				}
				line = append(line, b)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Done is closed when Run returns.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Cli delivers CLI lines in arrival order.
func (r *Receiver) Cli() <-chan CliLine {
	return r.cliCh
}

// Data is signaled after a new sample line. Several lines may coalesce
// into one signal; Latest returns the newest.
func (r *Receiver) Data() <-chan struct{} {
	return r.dataCh
}

// Latest returns the newest sample line.
func (r *Receiver) Latest() DataLine {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.latest
}

// DrainCli discards pending CLI lines and returns how many were dropped.
func (r *Receiver) DrainCli() int {
	for n := 0; ; n++ {
		select {
		case <-r.cliCh:
		default:
			return n
		}
	}
}

// StartCapture starts recording every sample line into a fresh buffer.
func (r *Receiver) StartCapture() {
	r.lock.Lock()
	r.capturing, r.captured = true, nil
	r.lock.Unlock()
}

// StopCapture stops recording and returns the captured lines.
func (r *Receiver) StopCapture() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	lines := r.captured
	r.capturing, r.captured = false, nil
	return lines
}

// Dropped returns the number of CLI lines discarded because the queue
// was full.
func (r *Receiver) Dropped() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.dropped
}

func (r *Receiver) dispatch(line string) {
	switch {
	case strings.Contains(line, CliPrefix):
		glog.V(2).Infof("rx %s", line)
		r.pushCli(CliLine(line))
	case strings.Contains(line, DataPrefix):
		r.lock.Lock()
		r.latest = DataLine(line)
		if r.capturing {
			r.captured = append(r.captured, line)
		}
		r.lock.Unlock()
		select {
		case r.dataCh <- struct{}{}:
		default:
		}
	default:
		if line != "" {
			glog.V(4).Infof("rx unclassified %q", line)
		}
	}
}

func (r *Receiver) pushCli(l CliLine) {
	select {
	case r.cliCh <- l:
		return
	default:
	}
	select {
	case <-r.cliCh:
		r.lock.Lock()
		r.dropped++
		r.lock.Unlock()
	default:
	}
	select {
	case r.cliCh <- l:
	default:
	}
}
