// Package validate is the single gate between untrusted input and the native
// boundary or persisted section storage. Every user-supplied id, name, or
// section payload passes through here before any native call is attempted.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/veloq/enginesync/internal/section"
)

const (
	// MaxFieldLength bounds ids and names.
	MaxFieldLength = 255

	// MaxSectionPayloadBytes bounds the UTF-8 byte length of a serialized
	// custom section. The limit exists to keep single-file writes and
	// boundary crossings cheap.
	MaxSectionPayloadBytes = 100 * 1024

	// MinPolylinePoints is the smallest polyline that still describes a
	// segment.
	MinPolylinePoints = 2
)

// ID rejects empty values, values over MaxFieldLength, and values containing
// disallowed control characters.
func ID(value, field string) error {
	if value == "" {
		return &Error{Field: field, Reason: "must not be empty"}
	}
	return text(value, field)
}

// Name applies the same length and charset rules as ID, but permits the
// empty string: a name may legitimately be blank in some flows.
func Name(value, field string) error {
	return text(value, field)
}

func text(value, field string) error {
	if len(value) > MaxFieldLength {
		return &Error{Field: field, Reason: fmt.Sprintf("exceeds %d characters", MaxFieldLength)}
	}
	for _, r := range value {
		if isDisallowed(r) {
			return &Error{Field: field, Reason: fmt.Sprintf("contains control character %U", r)}
		}
	}
	return nil
}

// isDisallowed permits tab, newline and carriage return; every other control
// character (including DEL) is rejected.
func isDisallowed(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return r < 0x20 || r == 0x7f
}

// CustomSectionPayload validates a section payload crossing into the engine
// or into persisted storage. Accepts a raw JSON string, raw bytes, a decoded
// map, or a typed section.
//
// The order is fixed: parse, then size, then shape. Size rejection must not
// require a structural walk of an oversized payload, so only the distance
// field is peeked at (for the trim suggestion) before the byte check.
func CustomSectionPayload(input any) (section.CustomSection, error) {
	var zero section.CustomSection

	raw, err := payloadBytes(input)
	if err != nil {
		return zero, err
	}

	if len(raw) > MaxSectionPayloadBytes {
		return zero, oversize(raw)
	}

	var sec section.CustomSection
	if err := json.Unmarshal(raw, &sec); err != nil {
		return zero, fmt.Errorf("parse custom section payload: %w", err)
	}
	if err := shape(sec); err != nil {
		return zero, err
	}
	return sec, nil
}

// payloadBytes normalizes the accepted input forms to serialized JSON.
// String and byte inputs must already be valid JSON; their own byte length
// is the payload size. Object inputs are serialized first.
func payloadBytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case string:
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("parse custom section payload: invalid JSON")
		}
		return []byte(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("parse custom section payload: invalid JSON")
		}
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serialize custom section payload: %w", err)
		}
		return raw, nil
	}
}

// oversize builds a SizeError with a trim suggestion proportional to the
// overshoot. Only distanceMeters is decoded; the rest of the payload is
// never walked.
func oversize(raw []byte) error {
	var peek struct {
		DistanceMeters float64 `json:"distanceMeters"`
	}
	_ = json.Unmarshal(raw, &peek)

	over := len(raw) - MaxSectionPayloadBytes
	var trim float64
	if peek.DistanceMeters > 0 {
		trim = peek.DistanceMeters * float64(over) / float64(len(raw))
		if trim < 1 {
			trim = 1
		}
	}
	return &SizeError{
		ActualBytes: len(raw),
		LimitBytes:  MaxSectionPayloadBytes,
		TrimMeters:  trim,
	}
}

// shape validates field-by-field, failing on the first violation with a
// field-path-annotated error.
func shape(sec section.CustomSection) error {
	if err := ID(sec.ID, "id"); err != nil {
		return err
	}
	if err := Name(sec.Name, "name"); err != nil {
		return err
	}
	if len(sec.Polyline) < MinPolylinePoints {
		return &Error{
			Field:  "polyline",
			Reason: fmt.Sprintf("must contain at least %d points", MinPolylinePoints),
		}
	}
	for i, p := range sec.Polyline {
		if p.Latitude < -90 || p.Latitude > 90 {
			return &Error{
				Field:  fmt.Sprintf("polyline[%d].latitude", i),
				Reason: "must be between -90 and 90",
			}
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			return &Error{
				Field:  fmt.Sprintf("polyline[%d].longitude", i),
				Reason: "must be between -180 and 180",
			}
		}
	}
	if err := ID(sec.SourceActivityID, "sourceActivityId"); err != nil {
		return err
	}
	if sec.StartIndex < 0 {
		return &Error{Field: "startIndex", Reason: "must not be negative"}
	}
	if sec.EndIndex < 0 {
		return &Error{Field: "endIndex", Reason: "must not be negative"}
	}
	if err := Name(sec.SportType, "sportType"); err != nil {
		return err
	}
	if sec.DistanceMeters < 0 {
		return &Error{Field: "distanceMeters", Reason: "must not be negative"}
	}
	return nil
}
