package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// ErrClosed is returned by I/O on a closed Link.
var ErrClosed = errors.New("link closed")

// Link is a scoped handle of an open port.
type Link struct {
	Name string
	Mode Mode

	port     Port
	lock     sync.RWMutex
	closed   bool
	closeErr error
}

// Open opens name with mode. The caller must Close the returned Link.
func Open(opener Opener, name string, mode Mode) (*Link, error) {
	p, err := opener.Open(name, mode)
	if err != nil {
		return nil, fx.E(fx.KindPort, fmt.Sprintf("open %s at %d baud", name, mode.BaudRate), err)
	}
	glog.V(2).Infof("opened %s at %d baud", name, mode.BaudRate)
	return &Link{Name: name, Mode: mode, port: p}, nil
}

// Read implements io.Reader. It returns (0, nil) on read timeout.
func (l *Link) Read(p []byte) (int, error) {
	l.lock.RLock()
	port, closed := l.port, l.closed
	l.lock.RUnlock()
	if closed {
		return 0, fx.E(fx.KindPort, l.Name, ErrClosed)
	}
	n, err := port.Read(p)
	if err != nil {
		return n, fx.E(fx.KindPort, "read "+l.Name, err)
	}
	return n, nil
}

// Write implements io.Writer.
func (l *Link) Write(p []byte) (int, error) {
	l.lock.RLock()
	port, closed := l.port, l.closed
	l.lock.RUnlock()
	if closed {
		return 0, fx.E(fx.KindPort, l.Name, ErrClosed)
	}
	n, err := port.Write(p)
	if err != nil {
		return n, fx.E(fx.KindPort, "write "+l.Name, err)
	}
	return n, nil
}

// ReadBytes reads up to n bytes. Fewer are returned if a read times out.
func (l *Link) ReadBytes(n int) ([]byte, error) {
	return ReadAtMost(l, n)
}

// WriteBytes writes all of b.
func (l *Link) WriteBytes(b []byte) error {
	_, err := l.Write(b)
	return err
}

// Flush discards anything buffered in either direction.
func (l *Link) Flush() error {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if l.closed {
		return fx.E(fx.KindPort, l.Name, ErrClosed)
	}
	var errs fx.AggregatedError
	errs.Add(l.port.ResetInputBuffer(), l.port.ResetOutputBuffer())
	if err := errs.Aggregate(); err != nil {
		return fx.E(fx.KindPort, "flush "+l.Name, err)
	}
	return nil
}

// Close releases the port. Only the first call closes it.
func (l *Link) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return l.closeErr
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		l.closeErr = fx.E(fx.KindPort, "close "+l.Name, err)
	}
	glog.V(2).Infof("closed %s", l.Name)
	return l.closeErr
}

// ReadAtMost reads from r until n bytes are collected or a read returns
// no data.
func ReadAtMost(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		c, err := r.Read(buf[got:])
		got += c
		if err != nil {
			if err == io.EOF {
				break
			}
			return buf[:got], err
		}
		if c == 0 {
			break
		}
	}
	return buf[:got], nil
}
