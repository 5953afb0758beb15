package domain

import (
	"scalp_go/pkg/quant"
)

// Direction is the side of an order.
type Direction uint8

const (
	Buy Direction = iota + 1
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the flipped side, used when synthesizing closing orders.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Offset distinguishes position-increasing from position-reducing orders.
type Offset uint8

const (
	Open Offset = iota + 1
	Close
	CloseToday
)

func (o Offset) String() string {
	switch o {
	case Open:
		return "OPEN"
	case Close:
		return "CLOSE"
	case CloseToday:
		return "CLOSETODAY"
	default:
		return "UNKNOWN"
	}
}

// State is the lifecycle bucket of an order. Every order is in exactly one
// state at a time; Finished and Canceled are terminal.
type State uint8

const (
	StateResting State = iota + 1
	StatePartiallyFilled
	StateFinished
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateResting:
		return "RESTING"
	case StatePartiallyFilled:
		return "PARTIALLY_FILLED"
	case StateFinished:
		return "FINISHED"
	case StateCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// IsAlive reports whether the state still rests on the venue book.
func (s State) IsAlive() bool {
	return s == StateResting || s == StatePartiallyFilled
}

// IsTerminal reports whether the state accepts no further order updates.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateCanceled
}

// OrderRecord is the canonical view of one order. The registry exclusively
// owns all records; everything outside receives copies.
type OrderRecord struct {
	// LocalID is a locally generated correlation id, assigned at submit
	// intent. It keys the record until the venue acknowledges.
	LocalID string `json:"local_id"`
	// VenueID is assigned by the venue; empty until acknowledgment.
	VenueID string `json:"venue_id"`

	Symbol         string       `json:"symbol"`
	Direction      Direction    `json:"direction"`
	Offset         Offset       `json:"offset"`
	LimitPrice     quant.Price4 `json:"limit_price,string"`
	VolumeOriginal quant.Lots   `json:"volume_original"`
	VolumeLeft     quant.Lots   `json:"volume_left"`
	State          State        `json:"state"`

	InsertTime     quant.TimeStamp `json:"insert_time,string"`
	LastUpdateTime quant.TimeStamp `json:"last_update_time,string"`

	// OpponentLocalID links an Open order to the Close order generated to
	// exit it, and vice versa. Set at most once.
	OpponentLocalID string `json:"opponent_local_id,omitempty"`

	// TradeIDs lists applied fills in arrival order.
	TradeIDs []string `json:"trade_ids,omitempty"`

	// Frozen marks a record hit by a protocol inconsistency. Frozen records
	// accept no further automated handling.
	Frozen bool `json:"frozen,omitempty"`
}

// Active reports whether the order still counts toward the live book:
// alive on the venue and not frozen by a consistency violation.
func (o *OrderRecord) Active() bool {
	return o.State.IsAlive() && !o.Frozen
}

// NextState evaluates a venue (alive, volume_left) report against the
// transition table:
//
//	alive,    left = original       -> Resting
//	alive,    0 < left < original   -> PartiallyFilled
//	alive,    left = 0              -> rejected
//	finished, left = 0              -> Finished
//	finished, left > 0              -> Canceled
//
// An increase in volume_left is rejected by the registry before this is
// consulted.
func NextState(alive bool, left, original quant.Lots) (State, error) {
	if left < 0 || left > original {
		return 0, &ConsistencyError{Reason: ReasonVolumeOutOfRange}
	}
	if alive {
		if left == 0 {
			// A venue must report an order with nothing left as finished.
			return 0, &ConsistencyError{Reason: ReasonAliveWithoutVolume}
		}
		if left == original {
			return StateResting, nil
		}
		return StatePartiallyFilled, nil
	}
	if left == 0 {
		return StateFinished, nil
	}
	return StateCanceled, nil
}
