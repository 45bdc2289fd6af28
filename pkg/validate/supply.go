package validate

import (
	"fmt"
	"strconv"
	"strings"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Supplies are the rail voltages reported by the diag command.
type Supplies struct {
	VSys   float64
	V33    float64
	V25Pos float64
	V25Neg float64
}

// ParseDiag parses "CLI:vsys=5.0,v33=3.3,v25p=2.5,v25n=-2.5". Values are
// positional; the keys are not interpreted.
func ParseDiag(text string) (Supplies, error) {
	var s Supplies
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return s, fx.Errorf(fx.KindValidation, "Missing colon in CLI response:%s", text)
	}
	fields := strings.Split(parts[1], ",")
	if len(fields) != 4 {
		return s, fx.Errorf(fx.KindValidation, "Wrong value count received:%s", text)
	}
	vals := make([]float64, 4)
	for i, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return s, fx.Errorf(fx.KindValidation, "Malformed reading %q in:%s", f, text)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return s, fx.Errorf(fx.KindValidation, "Malformed reading %q in:%s", f, text)
		}
		vals[i] = v
	}
	return Supplies{VSys: vals[0], V33: vals[1], V25Pos: vals[2], V25Neg: vals[3]}, nil
}

// CheckSupplies checks every rail and returns the operator table. The
// error names all failing rails.
func CheckSupplies(s Supplies, l SupplyLimits) ([]string, error) {
	rails := []struct {
		name string
		v    float64
		r    Range
	}{
		{"VSYS", s.VSys, l.VSys},
		{"+3.3V", s.V33, l.V33},
		{"+2.5V", s.V25Pos, l.V25Pos},
		{"-2.5V", s.V25Neg, l.V25Neg},
	}
	var lines, failed []string
	for _, rail := range rails {
		lines = append(lines, fmt.Sprintf("***%s***", rail.name))
		lines = append(lines, RangeTable(rail.v, rail.r)...)
		if !rail.r.Contains(rail.v) {
			failed = append(failed, rail.name)
		}
	}
	if len(failed) > 0 {
		return lines, fx.Errorf(fx.KindValidation, "supply out of range: %s", strings.Join(failed, ", "))
	}
	return lines, nil
}
