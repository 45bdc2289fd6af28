package validate

import (
	"strconv"
	"strings"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Sample is one parsed sample line.
type Sample struct {
	ID       int
	Channels []int
	Raw      string
}

// Channel returns the value of 1-based channel ch.
func (s *Sample) Channel(ch int) (int, bool) {
	if ch < 1 || ch > len(s.Channels) {
		return 0, false
	}
	return s.Channels[ch-1], true
}

// ParseSample parses "DATA:id,ch1,...,chN".
func ParseSample(line string) (Sample, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return Sample{}, fx.Errorf(fx.KindValidation, "Missing colon in data: %q", line)
	}
	fields := strings.Split(parts[1], ",")
	vals := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Sample{}, fx.Errorf(fx.KindValidation, "field %d of %q: %v", i, line, err)
		}
		vals[i] = v
	}
	return Sample{ID: vals[0], Channels: vals[1:], Raw: line}, nil
}

// ParseSamples parses every line of a capture window.
func ParseSamples(lines []string) ([]Sample, error) {
	samples := make([]Sample, 0, len(lines))
	for _, line := range lines {
		s, err := ParseSample(line)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}
