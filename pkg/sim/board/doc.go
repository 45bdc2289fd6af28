// Package board simulates a sensing board on a serial port: the ROM
// bootloader, the application shell and its sample stream. It backs the
// station's end-to-end tests and the loader's -simulate mode.
package board
