package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
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
	ExperimentID ID
	DistrictID   ID
	PersonaID    ID
	CandidateID  ID
	PartyID      ID
	BlockID      ID
)

func (id ExperimentID) String() string { return ID(id).String() }
func (id DistrictID) String() string   { return ID(id).String() }
func (id PersonaID) String() string    { return ID(id).String() }
func (id CandidateID) String() string  { return ID(id).String() }
func (id PartyID) String() string      { return ID(id).String() }
func (id BlockID) String() string      { return ID(id).String() }

// districtIDPattern is the canonical district identifier format:
// zero-padded two-digit prefecture code, underscore, district number.
var districtIDPattern = regexp.MustCompile(`^\d{2}_\d{1,2}$`)

// ValidDistrictID reports whether s matches the canonical district id format
// (e.g. "13_1" for Tokyo 1st).
func ValidDistrictID(s string) bool {
	return districtIDPattern.MatchString(s)
}

// ParseExperimentID parses a string into ExperimentID
func ParseExperimentID(s string) (ExperimentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("experiment ID cannot be empty")
	}
	return ExperimentID(s), nil
}

// ParseDistrictID parses a string into DistrictID, enforcing the canonical format
func ParseDistrictID(s string) (DistrictID, error) {
	if !ValidDistrictID(s) {
		return "", fmt.Errorf("district ID %q does not match PP_N format", s)
	}
	return DistrictID(s), nil
}
