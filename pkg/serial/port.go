package serial

import (
	"io"
	"time"

	bugst "go.bug.st/serial"
)

// Port is the subset of a serial port used by a Link.
type Port interface {
	io.ReadWriter
	io.Closer
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Mode is the line configuration. Frames are always 8N1.
type Mode struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Opener opens a serial port by name.
type Opener interface {
	Open(name string, mode Mode) (Port, error)
}

// OpenFunc is the func form of Opener.
type OpenFunc func(name string, mode Mode) (Port, error)

// Open implements Opener.
func (f OpenFunc) Open(name string, mode Mode) (Port, error) {
	return f(name, mode)
}

// BugstOpener opens real ports using go.bug.st/serial.
type BugstOpener struct{}

// Open implements Opener.
func (BugstOpener) Open(name string, mode Mode) (Port, error) {
	p, err := bugst.Open(name, &bugst.Mode{
		BaudRate: mode.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	timeout := mode.ReadTimeout
	if timeout <= 0 {
		timeout = bugst.NoTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
