// Package report publishes the outcome of each board session to the
// production line: a rotating ledger file, an MQTT topic and Prometheus
// metrics.
package report

import (
	"context"
	"time"

	"github.com/golang/protobuf/ptypes"
	structpb "github.com/golang/protobuf/ptypes/struct"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
)

// Outcome of a board session.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeAborted = "aborted"
)

// Result describes one board session.
type Result struct {
	SessionID  string
	Station    string
	Port       string
	Serial     string
	Firmware   string
	Outcome    string
	Stage      string
	Kind       string
	Error      string
	Frequency  float64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the session.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Struct encodes the result as a protobuf Struct.
func (r *Result) Struct() (*structpb.Struct, error) {
	started, err := ptypes.TimestampProto(r.StartedAt)
	if err != nil {
		return nil, err
	}
	finished, err := ptypes.TimestampProto(r.FinishedAt)
	if err != nil {
		return nil, err
	}
	fields := map[string]*structpb.Value{
		"session_id":  stringValue(r.SessionID),
		"station":     stringValue(r.Station),
		"port":        stringValue(r.Port),
		"outcome":     stringValue(r.Outcome),
		"started_at":  stringValue(ptypes.TimestampString(started)),
		"finished_at": stringValue(ptypes.TimestampString(finished)),
		"duration_s":  numberValue(r.Duration().Seconds()),
	}
	optional := map[string]string{
		"serial":   r.Serial,
		"firmware": r.Firmware,
		"stage":    r.Stage,
		"kind":     r.Kind,
		"error":    r.Error,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = stringValue(v)
		}
	}
	if r.Frequency != 0 {
		fields["frequency_hz"] = numberValue(r.Frequency)
	}
	return &structpb.Struct{Fields: fields}, nil
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

// Reporter receives finished results.
type Reporter interface {
	Report(ctx context.Context, r *Result) error
}

// Reporters fans a result out to every reporter.
type Reporters []Reporter

// Report implements Reporter. All reporters are called; errors are
// aggregated.
func (rs Reporters) Report(ctx context.Context, r *Result) error {
	var errs fx.AggregatedError
	for _, rep := range rs {
		errs.Add(rep.Report(ctx, r))
	}
	return errs.Aggregate()
}
