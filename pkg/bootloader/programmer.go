package bootloader

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/serial"
)

const (
	pingResponseSize = 10
	genericSize      = 18
)

// State is the position of a Programmer in the bootloader session.
type State int

// Programmer states.
const (
	StateDisconnected State = iota
	StateHandshaking
	StateConnected
	StateErasing
	StateTransferring
	StateResetting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"disconnected", "handshaking", "connected", "erasing",
	"transferring", "resetting", "done", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Programmer drives the bootloader of one board. It is not safe for
// concurrent use.
type Programmer struct {
	link   io.ReadWriter
	config Config
	state  State
}

// New creates a Programmer over link.
func New(link io.ReadWriter, opts ...Option) *Programmer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{link: link, config: cfg}
}

// State returns the current state.
func (p *Programmer) State() State {
	return p.state
}

// Handshake pings the bootloader. A short or missing reply is a timeout,
// a wrong reply a protocol error; both leave the programmer Failed.
func (p *Programmer) Handshake() error {
	p.state = StateHandshaking
	if err := p.write(pingFrame); err != nil {
		return p.fail(err)
	}
	res, err := serial.ReadAtMost(p.link, pingResponseSize)
	if err != nil {
		return p.fail(err)
	}
	if len(res) != pingResponseSize {
		return p.fail(fx.Errorf(fx.KindTimeout, "bootloader ping: %d of %d bytes received", len(res), pingResponseSize))
	}
	if res[0] != Marker || res[1] != TypePingResponse {
		return p.fail(fx.Errorf(fx.KindProtocol, "bootloader ping: unexpected response % X", res[:2]))
	}
	glog.V(2).Infof("bootloader ping response % X", res)
	p.state = StateConnected
	return nil
}

// EraseAll erases the application flash.
func (p *Programmer) EraseAll() error {
	if err := p.expectState(StateConnected); err != nil {
		return err
	}
	p.state = StateErasing
	if err := p.command(FlashEraseAllCommand(), "erase request"); err != nil {
		return p.fail(err)
	}
	p.state = StateConnected
	return nil
}

// Reset restarts the board into the programmed application.
func (p *Programmer) Reset() error {
	if err := p.expectState(StateConnected); err != nil {
		return err
	}
	p.state = StateResetting
	if err := p.command(ResetCommand(), "reset request"); err != nil {
		return p.fail(err)
	}
	p.state = StateDone
	return nil
}

// Program writes data to flash starting at start. Each chunk is resent
// until acknowledged or the configured attempts are used up.
func (p *Programmer) Program(ctx context.Context, start uint32, data []byte) error {
	if err := p.expectState(StateConnected); err != nil {
		return err
	}
	p.state = StateTransferring
	if err := p.command(WriteMemoryCommand(start, uint32(len(data))), "write memory request"); err != nil {
		return p.fail(err)
	}

	total := len(data)
	count, lastPercent := 0, 0
	for count < total {
		if err := ctx.Err(); err != nil {
			return p.fail(err)
		}
		end := count + p.config.ChunkSize
		if end > total {
			end = total
		}
		chunk := DataPacket(data[count:end])
		count = end
		if err := p.sendChunk(chunk, count); err != nil {
			return p.fail(err)
		}
		if percent := count * 100 / total; percent%10 == 0 && percent != lastPercent {
			lastPercent = percent
			if p.config.OnProgress != nil {
				p.config.OnProgress(Progress{Percent: percent, BytesWritten: count, Total: total})
			}
		}
	}

	if err := p.expectGeneric("final packet"); err != nil {
		return p.fail(err)
	}
	if err := p.write(ackFrame); err != nil {
		return p.fail(err)
	}
	p.state = StateConnected
	return nil
}

func (p *Programmer) sendChunk(pkt *Packet, count int) error {
	for attempt := 1; attempt <= p.config.ChunkAttempts; attempt++ {
		if _, err := pkt.WriteTo(p.link); err != nil {
			return fx.E(fx.KindPort, "send data packet", err)
		}
		res, err := serial.ReadAtMost(p.link, len(ackFrame))
		if err != nil {
			return err
		}
		if bytes.Equal(res, ackFrame) {
			return nil
		}
		glog.V(2).Infof("data byte %d attempt %d: got % X", count, attempt, res)
		p.logf("Resending packet %d", count)
	}
	return fx.Errorf(fx.KindProtocol, "ACK not received after data byte %d", count)
}

// command sends pkt and completes the ACK, generic response, ACK exchange.
func (p *Programmer) command(pkt *Packet, what string) error {
	if _, err := pkt.WriteTo(p.link); err != nil {
		return fx.E(fx.KindPort, what, err)
	}
	res, err := serial.ReadAtMost(p.link, len(ackFrame))
	if err != nil {
		return err
	}
	if !bytes.Equal(res, ackFrame) {
		return fx.Errorf(fx.KindProtocol, "ACK not received after %s (got % X)", what, res)
	}
	if err := p.expectGeneric(what); err != nil {
		return err
	}
	return p.write(ackFrame)
}

func (p *Programmer) expectGeneric(what string) error {
	res, err := serial.ReadAtMost(p.link, genericSize)
	if err != nil {
		return err
	}
	if len(res) != genericSize {
		return fx.Errorf(fx.KindProtocol, "generic response length error after %s: len=%d", what, len(res))
	}
	glog.V(4).Infof("generic response after %s: % X", what, res)
	return nil
}

func (p *Programmer) write(b []byte) error {
	if _, err := p.link.Write(b); err != nil {
		return fx.E(fx.KindPort, "write", err)
	}
	return nil
}

func (p *Programmer) expectState(s State) error {
	if p.state != s {
		return fx.Errorf(fx.KindProtocol, "bootloader is %s, expected %s", p.state, s)
	}
	return nil
}

func (p *Programmer) fail(err error) error {
	p.state = StateFailed
	return err
}

func (p *Programmer) logf(format string, args ...interface{}) {
	if p.config.Logf != nil {
		p.config.Logf(format, args...)
	}
}
