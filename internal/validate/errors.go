package validate

import (
	"errors"
	"fmt"
)

// Error reports a field-level validation failure. The message format
// "Invalid <field>: <reason>" is rendered directly in the UI, so Field names
// the offending field path (e.g. "polyline[3].latitude").
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Invalid %s: %s", e.Field, e.Reason)
}

// SizeError reports a serialized section payload over the byte limit.
//
// The message is pipe-delimited so callers can split out the parts for a
// remediation hint without parsing prose: the actual byte count, the limit,
// and an estimate of how many meters of polyline to trim to fit.
type SizeError struct {
	ActualBytes int
	LimitBytes  int
	TrimMeters  float64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("section payload too large|actual_bytes=%d|limit_bytes=%d|trim_meters=%.0f",
		e.ActualBytes, e.LimitBytes, e.TrimMeters)
}

// IsValidationError reports whether err is any validation failure produced
// by this package. Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return true
	}
	var se *SizeError
	return errors.As(err, &se)
}
