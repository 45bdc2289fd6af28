package framework

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AggregatedError aggregates multiple errors.
type AggregatedError struct {
	Errors []error
}

// Error implements error
func (e *AggregatedError) Error() string {
	if len(e.Errors) == 0 {
		return ""
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := make([]string, len(e.Errors)+1)
	msg[0] = "Multiple errors:"
	for n, err := range e.Errors {
		msg[n+1] = err.Error()
	}
	return strings.Join(msg, "\n")
}

// Add adds errors to be aggregated. nil will be skipped.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns aggregated error if any error happened.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Kind classifies a failure so callers can decide policy without
// inspecting message text.
type Kind int

const (
	// KindUnknown is any error not classified below.
	KindUnknown Kind = iota
	// KindProtocol is a malformed or missing acknowledgement or a
	// wrong-length response. Never retried where it is raised.
	KindProtocol
	// KindTimeout means the expected response did not arrive in time.
	KindTimeout
	// KindValidation is a measurement outside its limits.
	KindValidation
	// KindPort is an enumeration, open or I/O failure of a serial port.
	KindPort
	// KindUserAbort means the operator declined to continue.
	KindUserAbort
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindProtocol:   "protocol",
	KindTimeout:    "timeout",
	KindValidation: "validation",
	KindPort:       "port",
	KindUserAbort:  "aborted",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is an error tagged with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates an Error of kind k.
func E(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf creates an Error of kind k with a formatted message.
func Errorf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
