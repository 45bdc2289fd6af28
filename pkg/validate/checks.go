package validate

import (
	"fmt"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Check names.
const (
	CheckNameSequential      = "sequential"
	CheckNameAmplitude       = "amplitude"
	CheckNameSynchronization = "synchronization"
	CheckNameFrequency       = "frequency"
)

// CheckError describes a failed check. Details are operator log lines.
type CheckError struct {
	Check   string
	Msg     string
	Details []string
}

func (e *CheckError) Error() string {
	return e.Check + " check failed: " + e.Msg
}

func checkErr(check string, details []string, format string, args ...interface{}) error {
	return fx.E(fx.KindValidation, "", &CheckError{
		Check:   check,
		Msg:     fmt.Sprintf(format, args...),
		Details: details,
	})
}

// CheckSequential verifies that sample ids increase by exactly one.
func CheckSequential(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		last := samples[i-1].ID
		if samples[i].ID != last+1 {
			return checkErr(CheckNameSequential, []string{
				fmt.Sprintf("Missing ID on line %d:%s", i+1, samples[i].Raw),
				fmt.Sprintf("Last ID=%d", last),
			}, "id %d on line %d follows %d", samples[i].ID, i+1, last)
		}
	}
	return nil
}

// Amplitude summarizes the extremes seen across channels.
type Amplitude struct {
	// HighMin and HighMax bound the per-channel maxima, LowMin and LowMax
	// the per-channel minima.
	HighMin, HighMax int
	LowMin, LowMax   int
}

func (a Amplitude) String() string {
	return fmt.Sprintf("%d<HIGH<%d %d<LOW<%d", a.HighMin, a.HighMax, a.LowMin, a.LowMax)
}

func minMax(samples []Sample, ch int) (min, max int, err error) {
	for i := range samples {
		v, ok := samples[i].Channel(ch)
		if !ok {
			return 0, 0, fmt.Errorf("line %d has no channel %d", i+1, ch)
		}
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}
	return min, max, nil
}

// CheckAmplitude verifies each channel's maximum lies in l.AmpHigh and its
// minimum in l.AmpLow. It stops at the first failing channel.
func CheckAmplitude(samples []Sample, l Limits) (Amplitude, error) {
	var a Amplitude
	if len(samples) == 0 {
		return a, checkErr(CheckNameAmplitude, nil, "no samples captured")
	}
	for ch := 1; ch <= l.Channels; ch++ {
		min, max, err := minMax(samples, ch)
		if err != nil {
			return a, checkErr(CheckNameAmplitude, nil, "%v", err)
		}
		if !l.AmpHigh.Contains(float64(max)) {
			return a, checkErr(CheckNameAmplitude, append(
				[]string{fmt.Sprintf("Channel %d FAILED HIGH VALUE", ch)},
				RangeTable(float64(max), l.AmpHigh)...),
				"channel %d maximum %d outside %v", ch, max, l.AmpHigh)
		}
		if !l.AmpLow.Contains(float64(min)) {
			return a, checkErr(CheckNameAmplitude, append(
				[]string{fmt.Sprintf("Channel %d FAILED LOW VALUE", ch)},
				RangeTable(float64(min), l.AmpLow)...),
				"channel %d minimum %d outside %v", ch, min, l.AmpLow)
		}
		if ch == 1 {
			a = Amplitude{HighMin: max, HighMax: max, LowMin: min, LowMax: min}
			continue
		}
		a.HighMin, a.HighMax = minInt(a.HighMin, max), maxInt(a.HighMax, max)
		a.LowMin, a.LowMax = minInt(a.LowMin, min), maxInt(a.LowMax, min)
	}
	return a, nil
}

// RisingEdges returns the indices where channel ch goes from negative to
// positive.
func RisingEdges(samples []Sample, ch int) []int {
	var edges []int
	for i := 1; i < len(samples); i++ {
		prev, ok1 := samples[i-1].Channel(ch)
		cur, ok2 := samples[i].Channel(ch)
		if ok1 && ok2 && prev < 0 && cur > 0 {
			edges = append(edges, i)
		}
	}
	return edges
}

// CheckSynchronization verifies rising edges of adjacent channels line up
// within l.MaxEdgeOffset samples, edge by edge.
func CheckSynchronization(samples []Sample, l Limits) error {
	edges := make([][]int, l.Channels)
	for ch := 1; ch <= l.Channels; ch++ {
		edges[ch-1] = RisingEdges(samples, ch)
	}
	for x := 0; x+1 < l.Channels; x++ {
		a, b := edges[x], edges[x+1]
		if len(b) < len(a) {
			return checkErr(CheckNameSynchronization, []string{
				fmt.Sprintf("Synchro error in channels %d and %d", x+1, x+2),
				fmt.Sprintf("Edges=%d/%d", len(a), len(b)),
			}, "channel %d has %d edges, channel %d has %d", x+1, len(a), x+2, len(b))
		}
		for d := range a {
			delta := a[d] - b[d]
			if delta < 0 {
				delta = -delta
			}
			if delta > l.MaxEdgeOffset {
				return checkErr(CheckNameSynchronization, []string{
					fmt.Sprintf("Synchro error in channels %d and %d", x+1, x+2),
					fmt.Sprintf("Delta=%d", delta),
				}, "channels %d and %d edge %d off by %d samples", x+1, x+2, d+1, delta)
			}
		}
	}
	return nil
}

// EstimateFrequency derives the signal frequency of channel 1 from the
// spacing of its last two rising edges.
func EstimateFrequency(samples []Sample, l Limits) (float64, error) {
	edges := RisingEdges(samples, 1)
	if len(edges) < 2 {
		return 0, fmt.Errorf("%d rising edges on channel 1, need 2", len(edges))
	}
	spacing := edges[len(edges)-1] - edges[len(edges)-2]
	period := float64(spacing) * l.SampleInterval.Seconds()
	return 1 / period, nil
}

// CheckFrequency verifies the estimated frequency lies in l.Frequency.
func CheckFrequency(samples []Sample, l Limits) (float64, error) {
	freq, err := EstimateFrequency(samples, l)
	if err != nil {
		return 0, checkErr(CheckNameFrequency, nil, "%v", err)
	}
	if !l.Frequency.Contains(freq) {
		return freq, checkErr(CheckNameFrequency, RangeTable(freq, l.Frequency),
			"%g Hz outside %v", freq, l.Frequency)
	}
	return freq, nil
}

// RangeTable formats a value against its limits the way the operator log
// shows them.
func RangeTable(v float64, r Range) []string {
	result := "PASS"
	if !r.Contains(v) {
		result = "FAIL"
	}
	return []string{
		"VAL\t\tMAX\tMIN\tRESULT",
		fmt.Sprintf("%v\t%v\t%v\t%s", v, r.Max, r.Min, result),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
