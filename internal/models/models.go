package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformedInput marks event data that cannot be windowed safely,
// such as a timestamp that is not a non-negative integer.
var ErrMalformedInput = errors.New("malformed input")

// maxExactFloat bounds the float fallback: at and above 2^53 neighbouring
// integers share a float64, so the decoded value may not be the encoded one.
const maxExactFloat = 1 << 53

// Timestamp is a point in time in milliseconds. It is validated once when
// decoded so the windowing code never has to re-check it.
type Timestamp uint64

// ParseTimestamp interprets a raw JSON number as a Timestamp.
func ParseTimestamp(raw string) (Timestamp, error) {
	if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return Timestamp(v), nil
	}
	// Exponent or fraction forms are accepted only when they denote an
	// exact non-negative integer.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: timestamp %q is not a number", ErrMalformedInput, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: timestamp %q is negative", ErrMalformedInput, raw)
	}
	if f != math.Trunc(f) || f >= maxExactFloat {
		return 0, fmt.Errorf("%w: timestamp %q is not an integer", ErrMalformedInput, raw)
	}
	return Timestamp(f), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '"' || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: timestamp %s is not a JSON number", ErrMalformedInput, data)
	}
	v, err := ParseTimestamp(string(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type Event struct {
	VisitorID string    `json:"visitorId"`
	URL       string    `json:"url"`
	Timestamp Timestamp `json:"timestamp"`
}

// UnmarshalJSON rejects events without a timestamp instead of defaulting to zero.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		VisitorID string     `json:"visitorId"`
		URL       string     `json:"url"`
		Timestamp *Timestamp `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Timestamp == nil {
		return fmt.Errorf("%w: event for visitor %q has no timestamp", ErrMalformedInput, raw.VisitorID)
	}
	*e = Event{VisitorID: raw.VisitorID, URL: raw.URL, Timestamp: *raw.Timestamp}
	return nil
}

type Batch struct {
	Events []Event `json:"events"`
}

type Session struct {
	StartTime Timestamp `json:"startTime"`
	Duration  uint64    `json:"duration"` // milliseconds
	Pages     []string  `json:"pages"`
}

// LatestActivity is the timestamp of the most recently absorbed event.
func (s Session) LatestActivity() Timestamp {
	return s.StartTime + Timestamp(s.Duration)
}

// Result is the document handed to a sink.
type Result struct {
	SessionByUser map[string][]Session `json:"sessionByUser"`
}
