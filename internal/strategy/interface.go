package strategy

import (
	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
)

// Quote is the current best bid/ask of the traded symbol.
type Quote struct {
	Symbol string
	Bid    quant.Price4
	Ask    quant.Price4
	Ts     quant.TimeStamp
}

// Signal is a request to open a position. Admission control may still veto
// it before anything is submitted.
type Signal struct {
	Direction domain.Direction
	Price     quant.Price4
	Volume    quant.Lots
}

// Strategy defines the opening decision logic. Closing is not a strategy
// concern: every fill is exited mechanically by the pairing engine.
type Strategy interface {
	// OnQuote is called for each quote change and reports whether an
	// opening order is wanted right now.
	OnQuote(q Quote) (Signal, bool)
}
