package board

import (
	"flag"
	"time"
)

// Baud rates the board listens at.
const (
	BootloaderBaud = 19200
	RuntimeBaud    = 921600
)

// Config describes the simulated board.
type Config struct {
	Port       string
	OtherPorts []string

	// Programmed starts the board running application firmware.
	Programmed bool
	Firmware   string
	Serial     string
	Diag       string

	Channels int
	// Period is the test signal period in samples.
	Period    int
	High, Low int
	// Skew delays the test signal of a channel by some samples.
	Skew map[int]int
	// SkipID drops this sample id from the stream when non-zero.
	SkipID int

	// SampleEvery is the wall time between streamed samples.
	SampleEvery time.Duration

	// DropAcks NAKs this many data packets before acknowledging.
	DropAcks int
	// MuteCli ignores this many shell commands.
	MuteCli int
}

var defaultConfig = Config{
	Port:        "/dev/ttySIM0",
	OtherPorts:  []string{"/dev/ttyS0"},
	Firmware:    "Amber FW 1.4.2 ADS1299 x4",
	Serial:      "NOT_SET",
	Diag:        "vsys=5.02,v33=3.31,v25p=2.50,v25n=-2.49",
	Channels:    32,
	Period:      50,
	High:        2500,
	Low:         -4500,
	SampleEvery: 4 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "sim-port", defaultConfig.Port, "Port name of the simulated board.")
	flag.BoolVar(&defaultConfig.Programmed, "sim-programmed", defaultConfig.Programmed, "Simulated board already runs firmware.")
	flag.StringVar(&defaultConfig.Serial, "sim-serial", defaultConfig.Serial, "Serial number stored on the simulated board.")
	flag.IntVar(&defaultConfig.DropAcks, "sim-drop-acks", defaultConfig.DropAcks, "Data packets the simulated bootloader rejects first.")
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}
