// Package bootloader speaks the framed binary protocol of the board's ROM
// bootloader.
//
// Every frame starts with the marker 0x5A followed by a type byte.
// Control frames (ACK, NAK, ping) are two bytes. Command and data frames
// carry a header:
//
//	+------+------+-----------+-----------+---------+
//	| 0x5A | type | length LE | crc16 LE  | payload |
//	+------+------+-----------+-----------+---------+
//
// The CRC covers marker, type, length and payload, and is inserted
// right after the length field.
//
// A Programmer drives one board through handshake, optional erase,
// chunked transfer and reset over any io.ReadWriter whose reads time out
// by returning no data.
package bootloader
