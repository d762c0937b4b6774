package model

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a malformed UI snapshot. Callers should retry with a
// fresh snapshot.
type ParseError struct {
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse snapshot: %s: %v", e.Detail, e.Err)
	}
	return "parse snapshot: " + e.Detail
}

func (e *ParseError) Unwrap() error { return e.Err }

// Attempt records one locator strategy tried during resolution.
type Attempt struct {
	Strategy Strategy `yaml:"strategy"       json:"strategy"`
	Value    string   `yaml:"value"          json:"value"`
	Matches  int      `yaml:"matches"        json:"matches"`
	Note     string   `yaml:"note,omitempty" json:"note,omitempty"`
}

// NotFoundError reports that every applicable strategy failed. When the
// vision strategy could not be completed locally, Vision carries the request
// for an external recognizer.
type NotFoundError struct {
	Query    Query
	Attempts []Attempt
	Vision   *VisionRequest
}

func (e *NotFoundError) Error() string {
	var tried []string
	for _, a := range e.Attempts {
		s := fmt.Sprintf("%s=%q matched %d", a.Strategy, a.Value, a.Matches)
		if a.Note != "" {
			s += " (" + a.Note + ")"
		}
		tried = append(tried, s)
	}
	msg := fmt.Sprintf("element not found: %s", e.Query)
	if len(tried) > 0 {
		msg += "; tried " + strings.Join(tried, ", ")
	}
	if e.Vision != nil {
		msg += "; vision request " + e.Vision.ID + " pending"
	}
	return msg
}

// VerificationError reports that an action executed but its effect could not
// be confirmed within the timeout.
type VerificationError struct {
	Action Action
	Result VerificationResult
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for %s: %s (change ratio %.3f after %d samples)",
		e.Action, e.Reason, e.Result.ChangeRatio, e.Result.Samples)
}

// DriverError reports a failure talking to the device. It is fatal for the
// session and must never be reported as a locator failure.
type DriverError struct {
	Device string
	Op     string
	Err    error
}

func (e *DriverError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("device %s: %s: %v", e.Device, e.Op, e.Err)
	}
	return fmt.Sprintf("device: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// ErrorKind classifies an error into the taxonomy for tool output.
func ErrorKind(err error) string {
	var (
		pe *ParseError
		nf *NotFoundError
		ve *VerificationError
		de *DriverError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &de):
		return "driver_error"
	case errors.As(err, &pe):
		return "parse_error"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ve):
		return "verification_failed"
	default:
		return "error"
	}
}

// IsRetryable reports whether the caller may retry after a fresh snapshot,
// a scroll, or a wait. Driver errors are never retryable.
func IsRetryable(err error) bool {
	switch ErrorKind(err) {
	case "parse_error", "not_found":
		return true
	default:
		return false
	}
}
