package inter

import (
	"encoding/json"
	"time"
)

// Timestamp is a point in time with millisecond resolution, stored as
// milliseconds since the Unix epoch. The zero value means "never".
type Timestamp uint64

// FromTime truncates t to milliseconds.
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixNano() / int64(time.Millisecond))
}

// Now returns the current time.
func Now() Timestamp {
	return FromTime(time.Now())
}

// Time converts back to time.Time in UTC.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(t)*int64(time.Millisecond)).UTC()
}

// Millis returns the raw value.
func (t Timestamp) Millis() uint64 {
	return uint64(t)
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return t == 0
}

// After reports whether t is strictly later than o.
func (t Timestamp) After(o Timestamp) bool {
	return t > o
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// MarshalJSON encodes an RFC 3339 string, or null for the zero value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts an RFC 3339 string, a number of milliseconds or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = 0
		return nil
	}
	var ms uint64
	if err := json.Unmarshal(data, &ms); err == nil {
		*t = Timestamp(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = FromTime(parsed)
	return nil
}
