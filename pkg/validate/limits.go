package validate

import (
	"fmt"
	"time"
)

// Range is an inclusive interval.
type Range struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Contains reports whether Min <= v <= Max.
func (r Range) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%v, %v]", r.Min, r.Max)
}

// Limits are the pass bands of the signal checks.
type Limits struct {
	Channels int `mapstructure:"channels"`
	// AmpHigh bounds each channel's maximum, AmpLow its minimum.
	AmpHigh Range `mapstructure:"amp_high"`
	AmpLow  Range `mapstructure:"amp_low"`
	// MaxEdgeOffset is the tolerated rising edge skew between adjacent
	// channels, in samples.
	MaxEdgeOffset  int           `mapstructure:"max_edge_offset"`
	Frequency      Range         `mapstructure:"frequency"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// DefaultLimits returns the limits for the 32 channel board running its
// 5 Hz test signal at 250 samples per second.
func DefaultLimits() Limits {
	return Limits{
		Channels:       32,
		AmpHigh:        Range{Min: 1900, Max: 3200},
		AmpLow:         Range{Min: -5600, Max: -3900},
		MaxEdgeOffset:  3,
		Frequency:      Range{Min: 4.998, Max: 5.001},
		SampleInterval: 4 * time.Millisecond,
	}
}

// SupplyLimits are the pass bands of the supply rails.
type SupplyLimits struct {
	VSys   Range `mapstructure:"vsys"`
	V33    Range `mapstructure:"v33"`
	V25Pos Range `mapstructure:"v25p"`
	V25Neg Range `mapstructure:"v25n"`
}

// DefaultSupplyLimits returns the rail limits of the board.
func DefaultSupplyLimits() SupplyLimits {
	return SupplyLimits{
		VSys:   Range{Min: 4.5, Max: 5.5},
		V33:    Range{Min: 3.2, Max: 3.4},
		V25Pos: Range{Min: 2.4, Max: 2.6},
		V25Neg: Range{Min: -2.6, Max: -2.4},
	}
}
