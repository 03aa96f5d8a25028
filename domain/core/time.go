package core

import (
	"time"
)

// Timestamp is a UTC instant recorded on audit rounds
type Timestamp time.Time

// NewTimestamp normalizes t to UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC())
}

// Now returns the current UTC timestamp
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Since is the elapsed time from start to t, or zero when either end is unset
// or t precedes start.
func (t Timestamp) Since(start Timestamp) time.Duration {
	if t.IsZero() || start.IsZero() {
		return 0
	}
	if d := t.Time().Sub(start.Time()); d > 0 {
		return d
	}
	return 0
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = NewTimestamp(tm)
	return nil
}

func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }
