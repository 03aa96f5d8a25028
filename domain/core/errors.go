package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Setup errors
	ErrContestMisformed = errors.New("contest misformed")
	ErrInvalidConfig    = errors.New("invalid audit configuration")
	ErrMissingContest   = errors.New("ballot record does not contain contest")

	// Sampling errors
	ErrSamplerExhausted = errors.New("sampler exhausted")
	ErrResetForbidden   = errors.New("sampler reset forbidden after commitment")

	// Workflow errors
	ErrNoProgress    = errors.New("round selected no new samples")
	ErrAuditComplete = errors.New("audit already complete")
	ErrRoundMismatch = errors.New("round does not match audit state")
)

// NewMisformedError reports a contest whose reported results are inconsistent
func NewMisformedError(contestID ContestID, reason string) error {
	return fmt.Errorf("%w: contest %s: %s", ErrContestMisformed, contestID, reason)
}

// NewConfigError reports an invalid configuration field
func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, reason)
}

// NewExhaustedError reports a sample request past the end of the sample
func NewExhaustedError(maxSamples int) error {
	return fmt.Errorf("%w: all %d samples already drawn", ErrSamplerExhausted, maxSamples)
}

// NewMissingContestError reports a ballot lacking a contest when card style is trusted
func NewMissingContestError(ballotID BallotID, contestID ContestID) error {
	return fmt.Errorf("%w: ballot %s, contest %s", ErrMissingContest, ballotID, contestID)
}

// IsSamplingError reports whether err is a sampling contract violation
func IsSamplingError(err error) bool {
	return errors.Is(err, ErrSamplerExhausted) ||
		errors.Is(err, ErrResetForbidden)
}
