package bootloader

import (
	"encoding/binary"
	"fmt"
)

// MaxPayload bounds the payload length accepted by Parser.
const MaxPayload = 512

// CRCError reports a framed packet whose CRC does not match.
type CRCError struct {
	Type     byte
	Expected uint16
	Actual   uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch for packet 0x%02X: expected 0x%04X, got 0x%04X",
		e.Type, e.Expected, e.Actual)
}

// ParseResult is the outcome of one parsing step. At most one of Control,
// Packet and Err is set.
type ParseResult struct {
	// Control is the type of a complete two-byte control frame.
	Control byte
	Packet  *Packet
	Err     error
}

type parseState int

const (
	stateMarker parseState = iota // waiting for 0x5A
	stateType                     // waiting for frame type
	stateLen                      // waiting for 2 length bytes
	stateCRC                      // waiting for 2 crc bytes
	stateData                     // waiting for payload
)

// Parser decodes a byte stream into frames, one byte at a time.
type Parser struct {
	state  parseState
	header [headerSize]byte
	pos    int
	packet *Packet
	recv   int
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.pos, p.packet, p.recv = stateMarker, 0, nil, 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateMarker:
		if b == Marker {
			p.header[0], p.pos = b, 1
			p.state = stateType
		}
	case stateType:
		switch b {
		case TypeAck, TypeNak, TypeAbort, TypePing:
			p.Reset()
			pr.Control = b
		case TypeCommand, TypeData:
			p.header[1], p.pos = b, 2
			p.state = stateLen
		case Marker:
			// stay synchronized on a repeated marker
		default:
			p.Reset()
		}
	case stateLen:
		p.header[p.pos] = b
		p.pos++
		if p.pos == 4 {
			n := int(binary.LittleEndian.Uint16(p.header[2:]))
			if n > MaxPayload {
				p.Reset()
				pr.Err = fmt.Errorf("payload length %d exceeds %d", n, MaxPayload)
				return
			}
			p.packet = &Packet{Type: p.header[1], Payload: make([]byte, n)}
			p.state = stateCRC
		}
	case stateCRC:
		p.header[p.pos] = b
		p.pos++
		if p.pos == headerSize {
			if len(p.packet.Payload) == 0 {
				return p.packetReady()
			}
			p.recv, p.state = 0, stateData
		}
	case stateData:
		p.packet.Payload[p.recv] = b
		p.recv++
		if p.recv >= len(p.packet.Payload) {
			return p.packetReady()
		}
	}
	return
}

func (p *Parser) packetReady() (pr ParseResult) {
	pkt := p.packet
	expected := binary.LittleEndian.Uint16(p.header[4:])
	actual := CRC16(p.header[:4], pkt.Payload)
	p.Reset()
	if expected != actual {
		pr.Err = &CRCError{Type: pkt.Type, Expected: expected, Actual: actual}
		return
	}
	pr.Packet = pkt
	return
}
