package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the on-disk timestamp format: ISO-8601 local time with
// microseconds and no zone offset. Lexical order matches time order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Layouts accepted when reading. Fractional seconds are optional for the
// zone-less form (time.Parse accepts them after the seconds field).
var timestampParseLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// Timestamp is a time.Time that serializes in TimestampLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microsecond precision, which is what the
// persisted format can represent.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Microsecond)}
}

// String formats the timestamp in local time.
func (t Timestamp) String() string {
	return t.In(time.Local).Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler. Malformed values are rejected
// here so that a bad store fails at load time rather than at use.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses a persisted timestamp. Values without a zone offset
// are interpreted in local time.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampParseLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
}
