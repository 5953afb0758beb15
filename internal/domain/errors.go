package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a local id is not tracked.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyBound is returned when a venue id is bound twice.
	ErrAlreadyBound = errors.New("venue id already bound")

	// ErrUnknownOrder is returned when the venue references an order the
	// registry never recorded. This indicates a missed submission record
	// and is fatal for that order.
	ErrUnknownOrder = errors.New("unknown venue order id")

	// ErrOpponentSet is returned when a pairing link would be set twice.
	ErrOpponentSet = errors.New("opponent order already set")
)

// Consistency violation reasons.
const (
	ReasonVolumeOutOfRange   = "volume_left out of range"
	ReasonVolumeIncreased    = "volume_left increased"
	ReasonAliveWithoutVolume = "alive order with volume_left = 0"
	ReasonFillOverflow       = "cumulative fill volume exceeds order volume"
	ReasonRecordFrozen       = "record frozen by earlier violation"
)

// ConsistencyError reports a protocol inconsistency between the local
// registry and the venue. The affected record is frozen; the number reported
// by the venue is never "corrected".
type ConsistencyError struct {
	LocalID string
	VenueID string
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation on order local=%s venue=%s: %s",
		e.LocalID, e.VenueID, e.Reason)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
