package board

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/amber-eeg/prodloader/pkg/bootloader"
	"github.com/amber-eeg/prodloader/pkg/serial"
)

// Mode is what the board is running.
type Mode int

// Board modes.
const (
	ModeBootloader Mode = iota
	ModeRuntime
)

const maxBurst = 256

var (
	errNoPort = errors.New("no such port")
	errClosed = errors.New("port closed")
	errBusy   = errors.New("port busy")
)

// Board is a simulated board. It implements serial.Opener and
// serial.Lister.
type Board struct {
	cfg Config

	lock     sync.Mutex
	plugged  bool
	open     *port
	mode     Mode
	out      bytes.Buffer
	parser   bootloader.Parser
	line     []byte
	flash    []byte
	expect   int
	erased   bool
	dropAcks int
	muteCli  int
	testMode bool
	serial   string
	streamAt time.Time
	sent     int
	commands []string
	resets   int
}

// New creates a board from cfg. It is unplugged until Plug is called.
func New(cfg Config) *Board {
	b := &Board{cfg: cfg, dropAcks: cfg.DropAcks, muteCli: cfg.MuteCli, serial: cfg.Serial}
	if cfg.Programmed {
		b.mode = ModeRuntime
		b.streamAt = time.Now()
	}
	return b
}

// Plug attaches the board so its port is listed.
func (b *Board) Plug() {
	b.lock.Lock()
	b.plugged = true
	b.lock.Unlock()
}

// Unplug detaches the board and fails I/O on an open port.
func (b *Board) Unplug() {
	b.lock.Lock()
	b.plugged = false
	if b.open != nil {
		b.open.closed = true
		b.open = nil
	}
	b.lock.Unlock()
}

// ListPorts implements serial.Lister.
func (b *Board) ListPorts() ([]string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	ports := append([]string(nil), b.cfg.OtherPorts...)
	if b.plugged {
		ports = append(ports, b.cfg.Port)
	}
	return ports, nil
}

// Open implements serial.Opener.
func (b *Board) Open(name string, mode serial.Mode) (serial.Port, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.plugged || name != b.cfg.Port {
		return nil, fmt.Errorf("open %s: %w", name, errNoPort)
	}
	if b.open != nil {
		return nil, fmt.Errorf("open %s: %w", name, errBusy)
	}
	p := &port{board: b, baud: mode.BaudRate, timeout: mode.ReadTimeout}
	b.open = p
	return p, nil
}

// Mode returns what the board is running.
func (b *Board) Mode() Mode {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.mode
}

// Flash returns the bytes programmed by the last transfer.
func (b *Board) Flash() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]byte(nil), b.flash...)
}

// Erased reports whether the flash was erased.
func (b *Board) Erased() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.erased
}

// Commands returns the shell commands received.
func (b *Board) Commands() []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]string(nil), b.commands...)
}

// Serial returns the stored serial number.
func (b *Board) Serial() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.serial
}

// listening reports whether the board understands a port at baud.
func (b *Board) listening(baud int) bool {
	if b.mode == ModeBootloader {
		return baud == BootloaderBaud
	}
	return baud == RuntimeBaud
}

func (b *Board) receive(baud int, data []byte) {
	if !b.listening(baud) {
		glog.V(4).Infof("sim: %d bytes at %d baud ignored", len(data), baud)
		return
	}
	for _, c := range data {
		if b.mode == ModeBootloader {
			b.bootloaderByte(c)
		} else {
			b.shellByte(c)
		}
	}
}

func (b *Board) bootloaderByte(c byte) {
	pr := b.parser.Parse(c)
	switch {
	case pr.Err != nil:
		b.out.Write([]byte{bootloader.Marker, bootloader.TypeNak})
	case pr.Control == bootloader.TypePing:
		resp := []byte{bootloader.Marker, bootloader.TypePingResponse, 0x00, 0x02, 0x01, 'P', 0x00, 0x00}
		crc := bootloader.CRC16(resp)
		resp = append(resp, byte(crc), byte(crc>>8))
		b.out.Write(resp)
	case pr.Packet != nil:
		b.bootloaderPacket(pr.Packet)
	}
}

func (b *Board) bootloaderPacket(pkt *bootloader.Packet) {
	ack := []byte{bootloader.Marker, bootloader.TypeAck}
	generic := make([]byte, 18)
	generic[0], generic[1] = bootloader.Marker, bootloader.TypeCommand
	switch pkt.Type {
	case bootloader.TypeCommand:
		if len(pkt.Payload) < 4 {
			b.out.Write([]byte{bootloader.Marker, bootloader.TypeNak})
			return
		}
		switch pkt.Payload[0] {
		case bootloader.CmdWriteMemory:
			b.expect = int(binary.LittleEndian.Uint32(pkt.Payload[8:]))
			b.flash = b.flash[:0]
		case bootloader.CmdFlashEraseAll:
			b.erased = true
		case bootloader.CmdReset:
			b.resets++
			b.mode = ModeRuntime
			b.testMode = false
			b.streamAt, b.sent = time.Now(), 0
		}
		b.out.Write(ack)
		b.out.Write(generic)
	case bootloader.TypeData:
		if b.dropAcks > 0 {
			b.dropAcks--
			b.out.Write([]byte{bootloader.Marker, bootloader.TypeNak})
			return
		}
		b.flash = append(b.flash, pkt.Payload...)
		b.out.Write(ack)
		if len(b.flash) >= b.expect {
			b.out.Write(generic)
		}
	}
}

func (b *Board) shellByte(c byte) {
	switch c {
	case '\r':
		cmd := strings.TrimSpace(string(b.line))
		b.line = b.line[:0]
		if cmd != "" {
			b.command(cmd)
		}
	case '\n':
	default:
		b.line = append(b.line, c)
	}
}

func (b *Board) command(cmd string) {
	b.commands = append(b.commands, cmd)
	if b.muteCli > 0 {
		b.muteCli--
		return
	}
	name, arg := cmd, ""
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		name, arg = cmd[:i], cmd[i+1:]
	}
	var resp string
	switch name {
	case "ver":
		resp = b.cfg.Firmware
	case "ser":
		resp = "Serial:" + b.serial
	case "setser":
		b.serial = arg
		resp = "Serial number set to " + arg
	case "diag":
		resp = b.cfg.Diag
	case "chon":
		resp = "OK"
	case "test":
		b.testMode = true
		resp = "Test mode turned on"
	case "bootloader":
		b.mode = ModeBootloader
		b.parser.Reset()
		b.out.Reset()
		return
	default:
		resp = "Unknown command " + strconv.Quote(name)
	}
	b.out.WriteString("CLI:" + resp + "\r\n")
}

// stream appends the samples due by now.
func (b *Board) stream(now time.Time) {
	if b.mode != ModeRuntime || b.cfg.SampleEvery <= 0 {
		return
	}
	due := int(now.Sub(b.streamAt) / b.cfg.SampleEvery)
	for n := 0; b.sent < due && n < maxBurst; n++ {
		b.sent++
		if b.cfg.SkipID != 0 && b.sent == b.cfg.SkipID {
			continue
		}
		b.out.WriteString(b.sampleLine(b.sent))
	}
}

func (b *Board) sampleLine(id int) string {
	var sb strings.Builder
	sb.WriteString("DATA:")
	sb.WriteString(strconv.Itoa(id))
	for ch := 1; ch <= b.cfg.Channels; ch++ {
		v := 0
		if b.testMode {
			v = b.cfg.Low
			if k := id - b.cfg.Skew[ch]; k >= 0 && k%b.cfg.Period >= b.cfg.Period/2 {
				v = b.cfg.High
			}
		}
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteString("\r\n")
	return sb.String()
}

// port is one open handle of the board.
type port struct {
	board   *Board
	baud    int
	timeout time.Duration
	closed  bool
}

func (p *port) Read(buf []byte) (int, error) {
	b := p.board
	b.lock.Lock()
	timeout := p.timeout
	b.lock.Unlock()
	deadline := time.Now().Add(timeout)
	for {
		b.lock.Lock()
		if p.closed {
			b.lock.Unlock()
			return 0, errClosed
		}
		b.stream(time.Now())
		if b.out.Len() > 0 && b.listening(p.baud) {
			n, _ := b.out.Read(buf)
			b.lock.Unlock()
			return n, nil
		}
		b.lock.Unlock()
		if timeout > 0 && !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (p *port) Write(data []byte) (int, error) {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	if p.closed {
		return 0, errClosed
	}
	b.receive(p.baud, data)
	return len(data), nil
}

func (p *port) Close() error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if b.open == p {
		b.open = nil
	}
	return nil
}

func (p *port) SetReadTimeout(t time.Duration) error {
	p.board.lock.Lock()
	p.timeout = t
	p.board.lock.Unlock()
	return nil
}

func (p *port) ResetInputBuffer() error {
	b := p.board
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.listening(p.baud) {
		b.out.Reset()
	}
	return nil
}

func (p *port) ResetOutputBuffer() error {
	return nil
}
