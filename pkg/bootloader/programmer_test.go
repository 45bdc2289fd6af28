package bootloader

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// fakeDevice answers host frames like the ROM bootloader. Reads return
// no data when nothing is queued, the way a timed-out serial read does.
type fakeDevice struct {
	parser   Parser
	out      bytes.Buffer
	packets  []*Packet
	flash    []byte
	dropAcks int
	silent   bool
	badPing  bool
	noAckFor byte
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	for _, b := range p {
		pr := d.parser.Parse(b)
		switch {
		case d.silent:
		case pr.Control == TypePing:
			if d.badPing {
				d.out.Write([]byte{Marker, TypeNak})
				continue
			}
			d.out.Write([]byte{Marker, TypePingResponse, 0, 1, 'P', 0, 0, 0, 0, 0})
		case pr.Packet != nil:
			d.packets = append(d.packets, pr.Packet)
			d.handle(pr.Packet)
		}
	}
	return len(p), nil
}

func (d *fakeDevice) handle(pkt *Packet) {
	switch pkt.Type {
	case TypeCommand:
		if len(pkt.Payload) > 0 && pkt.Payload[0] == d.noAckFor {
			return
		}
		d.out.Write(ackFrame)
		d.out.Write(make([]byte, genericSize))
	case TypeData:
		if d.dropAcks > 0 {
			d.dropAcks--
			d.out.Write([]byte{Marker, TypeNak})
			return
		}
		d.flash = append(d.flash, pkt.Payload...)
		d.out.Write(ackFrame)
		if len(d.flash) == d.expected() {
			d.out.Write(make([]byte, genericSize))
		}
	}
}

func (d *fakeDevice) expected() int {
	for _, pkt := range d.packets {
		if pkt.Type == TypeCommand && pkt.Payload[0] == CmdWriteMemory {
			return int(pkt.Payload[8]) | int(pkt.Payload[9])<<8
		}
	}
	return -1
}

func image(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestProgrammerFullSequence(t *testing.T) {
	dev := &fakeDevice{}
	var progress []int
	p := New(dev, WithProgress(func(pr Progress) {
		progress = append(progress, pr.Percent)
	}))
	require.Equal(t, StateDisconnected, p.State())
	require.NoError(t, p.Handshake())
	require.Equal(t, StateConnected, p.State())
	require.NoError(t, p.EraseAll())

	data := image(160)
	require.NoError(t, p.Program(context.Background(), 0, data))
	require.Equal(t, data, dev.flash)
	require.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, progress)

	require.NoError(t, p.Reset())
	require.Equal(t, StateDone, p.State())

	require.Equal(t, FlashEraseAllCommand(), dev.packets[0])
	require.Equal(t, WriteMemoryCommand(0, 160), dev.packets[1])
	require.Equal(t, ResetCommand(), dev.packets[len(dev.packets)-1])
	require.Len(t, dev.packets, 1+1+10+1)
}

func TestProgrammerPartialChunk(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, WithChunkSize(16))
	require.NoError(t, p.Handshake())
	data := image(37)
	require.NoError(t, p.Program(context.Background(), 0, data))
	require.Equal(t, data, dev.flash)
	require.Len(t, dev.packets[len(dev.packets)-1].Payload, 5)
}

func TestProgrammerResendsChunk(t *testing.T) {
	dev := &fakeDevice{dropAcks: 2}
	var logs []string
	p := New(dev, WithLogf(func(format string, args ...interface{}) {
		logs = append(logs, fmt.Sprintf(format, args...))
	}))
	require.NoError(t, p.Handshake())
	data := image(48)
	require.NoError(t, p.Program(context.Background(), 0, data))
	require.Equal(t, data, dev.flash)
	require.Equal(t, []string{"Resending packet 16", "Resending packet 16"}, logs)
}

func TestProgrammerChunkExhausted(t *testing.T) {
	dev := &fakeDevice{dropAcks: 5}
	p := New(dev)
	require.NoError(t, p.Handshake())
	err := p.Program(context.Background(), 0, image(48))
	require.EqualError(t, err, "ACK not received after data byte 16")
	require.True(t, fx.IsKind(err, fx.KindProtocol))
	require.Equal(t, StateFailed, p.State())
}

func TestProgrammerHandshakeFailures(t *testing.T) {
	p := New(&fakeDevice{silent: true})
	err := p.Handshake()
	require.True(t, fx.IsKind(err, fx.KindTimeout), "%v", err)
	require.Equal(t, StateFailed, p.State())

	p = New(&fakeDevice{badPing: true})
	err = p.Handshake()
	require.True(t, fx.IsKind(err, fx.KindProtocol), "%v", err)
}

func TestProgrammerCommandNotAcked(t *testing.T) {
	p := New(&fakeDevice{noAckFor: CmdReset})
	require.NoError(t, p.Handshake())
	err := p.Reset()
	require.True(t, fx.IsKind(err, fx.KindProtocol))
	require.Contains(t, err.Error(), "ACK not received after reset request")
	require.Equal(t, StateFailed, p.State())
}

func TestProgrammerRequiresHandshake(t *testing.T) {
	p := New(&fakeDevice{})
	require.Error(t, p.Program(context.Background(), 0, image(16)))
	require.Error(t, p.EraseAll())
}

func TestProgrammerCanceled(t *testing.T) {
	p := New(&fakeDevice{})
	require.NoError(t, p.Handshake())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Program(ctx, 0, image(64))
	require.Equal(t, context.Canceled, err)
}
