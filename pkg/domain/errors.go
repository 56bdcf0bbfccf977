package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPopulation is returned when no samples fall within the requested scope.
	ErrEmptyPopulation = errors.New("empty population")
	// ErrZeroMean is returned by the coefficient of variation when the mean distance is 0.
	ErrZeroMean = errors.New("coefficient of variation undefined: mean is zero")
	// ErrDuplicateSequence is returned when a sequence name is already taken.
	ErrDuplicateSequence = errors.New("sequence name already exists")
)

// AlignmentError reports sequences that cannot be compared position by position.
type AlignmentError struct {
	SequenceID  int64
	Length      int
	ReferenceID int64
	Expected    int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("sequence %d has length %d, want %d (aligned to sequence %d)", e.SequenceID, e.Length, e.Expected, e.ReferenceID)
}

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsRegionScoped reports whether err only invalidates the current region's
// computation. Anything else (store connectivity, rule violations) aborts a batch.
func IsRegionScoped(err error) bool {
	if err == nil {
		return false
	}
	var alignment *AlignmentError
	if errors.As(err, &alignment) {
		return true
	}
	var missing ErrNotFound
	if errors.As(err, &missing) {
		return true
	}
	return errors.Is(err, ErrEmptyPopulation) || errors.Is(err, ErrZeroMean)
}
