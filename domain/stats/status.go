package stats

import (
	"fmt"
)

// Status is the terminal or in-progress state of an assertion or contest.
// The numeric value is the rank: when several assertions are aggregated the
// lowest rank wins.
type Status int

const (
	StatusInProgress Status = iota
	StatusLimitReached
	StatusStatRejectNull
	StatusContestMisformed
	StatusMinMargin
)

var statusNames = map[Status]string{
	StatusInProgress:       "InProgress",
	StatusLimitReached:     "LimitReached",
	StatusStatRejectNull:   "StatRejectNull",
	StatusContestMisformed: "ContestMisformed",
	StatusMinMargin:        "MinMargin",
}

// Rank returns the aggregation rank
func (s Status) Rank() int { return int(s) }

// Complete is true once no further samples will be tested
func (s Status) Complete() bool { return s != StatusInProgress }

// Success is true only when the null hypothesis was statistically rejected
func (s Status) Success() bool { return s == StatusStatRejectNull }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a status name back to its value
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusInProgress, fmt.Errorf("unknown status %q", name)
}

// AllStatuses lists statuses in rank order
func AllStatuses() []Status {
	return []Status{
		StatusInProgress,
		StatusLimitReached,
		StatusStatRejectNull,
		StatusContestMisformed,
		StatusMinMargin,
	}
}

// WorstStatus returns the lowest-ranked status; an empty list is InProgress.
func WorstStatus(statuses ...Status) Status {
	if len(statuses) == 0 {
		return StatusInProgress
	}
	worst := statuses[0]
	for _, s := range statuses[1:] {
		if s.Rank() < worst.Rank() {
			worst = s
		}
	}
	return worst
}
