package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientHistory means fewer than the required readings precede the reference time
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrSegmentNotFound means the road id is unknown
	ErrSegmentNotFound = errors.New("segment not found")
	// ErrInvalidRequest marks client input errors
	ErrInvalidRequest = errors.New("invalid request")
)

// InsufficientHistoryError details an ErrInsufficientHistory condition
type InsufficientHistoryError struct {
	RoadID string
	Before time.Time
	Need   int
	Found  int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("need %d historical readings for %s before %s, but only found %d",
		e.Need, e.RoadID, e.Before.Format(time.RFC3339), e.Found)
}

func (e *InsufficientHistoryError) Unwrap() error {
	return ErrInsufficientHistory
}
