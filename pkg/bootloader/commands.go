package bootloader

import "encoding/binary"

// Command tags carried in the first payload byte of a TypeCommand packet.
const (
	CmdFlashEraseAll byte = 0x01
	CmdWriteMemory   byte = 0x04
	CmdReset         byte = 0x0B
)

// WriteMemoryCommand prepares the device to receive length bytes at start.
func WriteMemoryCommand(start, length uint32) *Packet {
	payload := make([]byte, 12)
	payload[0], payload[3] = CmdWriteMemory, 0x02
	binary.LittleEndian.PutUint32(payload[4:], start)
	binary.LittleEndian.PutUint32(payload[8:], length)
	return &Packet{Type: TypeCommand, Payload: payload}
}

// ResetCommand restarts the device into the application.
func ResetCommand() *Packet {
	return &Packet{Type: TypeCommand, Payload: []byte{CmdReset, 0, 0, 0}}
}

// FlashEraseAllCommand erases the application flash.
func FlashEraseAllCommand() *Packet {
	return &Packet{Type: TypeCommand, Payload: []byte{CmdFlashEraseAll, 0, 0, 0}}
}

// DataPacket carries one chunk of the image.
func DataPacket(chunk []byte) *Packet {
	return &Packet{Type: TypeData, Payload: chunk}
}
