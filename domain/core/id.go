package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	AuditID     ID
	BallotID    ID
	ContestID   ID
	CandidateID ID
)

// String conversions for domain IDs
func (id AuditID) String() string     { return ID(id).String() }
func (id BallotID) String() string    { return ID(id).String() }
func (id ContestID) String() string   { return ID(id).String() }
func (id CandidateID) String() string { return ID(id).String() }

// NewAuditID creates a time-ordered audit identifier
func NewAuditID() AuditID {
	return AuditID(NewID())
}

// ParseContestID trims s and rejects blank contest ids
func ParseContestID(s string) (ContestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("contest ID cannot be empty")
	}
	return ContestID(s), nil
}
