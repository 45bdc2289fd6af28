package bootloader

import (
	"encoding/binary"
	"io"
)

// Marker starts every frame.
const Marker byte = 0x5A

// Frame types.
const (
	TypeAck          byte = 0xA1
	TypeNak          byte = 0xA2
	TypeAbort        byte = 0xA3
	TypeCommand      byte = 0xA4
	TypeData         byte = 0xA5
	TypePing         byte = 0xA6
	TypePingResponse byte = 0xA7
)

const headerSize = 6

var (
	ackFrame  = []byte{Marker, TypeAck}
	pingFrame = []byte{Marker, TypePing}
)

// Packet is a framed command or data packet.
type Packet struct {
	Type    byte
	Payload []byte
}

// Bytes returns the framed packet.
func (p *Packet) Bytes() []byte {
	b := make([]byte, headerSize+len(p.Payload))
	b[0], b[1] = Marker, p.Type
	binary.LittleEndian.PutUint16(b[2:], uint16(len(p.Payload)))
	copy(b[headerSize:], p.Payload)
	crc := CRC16(b[:4], p.Payload)
	binary.LittleEndian.PutUint16(b[4:], crc)
	return b
}

// WriteTo writes the framed packet in a single write.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// CRC16 computes the CRC-16/XMODEM of the concatenated chunks:
// polynomial 0x1021, initial value 0, no final XOR.
func CRC16(chunks ...[]byte) uint16 {
	var crc uint16
	for _, chunk := range chunks {
		for _, b := range chunk {
			crc ^= uint16(b) << 8
			for i := 0; i < 8; i++ {
				if crc&0x8000 != 0 {
					crc = crc<<1 ^ 0x1021
				} else {
					crc <<= 1
				}
			}
		}
	}
	return crc
}
