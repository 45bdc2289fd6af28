package validate

import (
	"errors"
	"fmt"
)

// Result is the outcome of one check.
type Result struct {
	Check string
	Err   error
}

// Report collects the results of all checks over one capture window.
type Report struct {
	Samples   int
	Results   []Result
	Amplitude Amplitude
	Frequency float64
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	return r.Err() == nil
}

// Err returns the first failing check's error.
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Lines renders the report as operator log lines.
func (r *Report) Lines() []string {
	lines := []string{fmt.Sprintf("%d samples analyzed", r.Samples)}
	for _, res := range r.Results {
		lines = append(lines, fmt.Sprintf("Checking %s...", res.Check))
		if res.Err == nil {
			switch res.Check {
			case CheckNameAmplitude:
				lines = append(lines,
					fmt.Sprintf("%d<HIGH<%d", r.Amplitude.HighMin, r.Amplitude.HighMax),
					fmt.Sprintf("%d<LOW<%d", r.Amplitude.LowMin, r.Amplitude.LowMax))
			case CheckNameFrequency:
				lines = append(lines, fmt.Sprintf("Average frequency=%g Hz", r.Frequency))
			}
			lines = append(lines, "PASSED")
			continue
		}
		var ce *CheckError
		if errors.As(res.Err, &ce) {
			lines = append(lines, ce.Details...)
		}
		lines = append(lines, "FAILED: "+res.Err.Error())
	}
	return lines
}

// Validate parses lines and runs all four checks independently.
func Validate(lines []string, l Limits) *Report {
	r := &Report{Samples: len(lines)}
	samples, err := ParseSamples(lines)
	if err != nil {
		r.Results = []Result{{Check: "parse", Err: err}}
		return r
	}
	r.Results = append(r.Results, Result{Check: CheckNameSequential, Err: CheckSequential(samples)})

	amp, err := CheckAmplitude(samples, l)
	r.Amplitude = amp
	r.Results = append(r.Results, Result{Check: CheckNameAmplitude, Err: err})

	r.Results = append(r.Results, Result{Check: CheckNameSynchronization, Err: CheckSynchronization(samples, l)})

	freq, err := CheckFrequency(samples, l)
	r.Frequency = freq
	r.Results = append(r.Results, Result{Check: CheckNameFrequency, Err: err})
	return r
}
