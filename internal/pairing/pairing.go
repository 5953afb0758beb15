package pairing

import (
	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
	"scalp_go/pkg/safe"
)

// CloseRequest is the computed closing order for a fully-filled opening
// order. The loop persists the pairing link before handing this to the
// gateway.
type CloseRequest struct {
	Symbol    string
	Direction domain.Direction
	Offset    domain.Offset
	Price     quant.Price4
	Volume    quant.Lots
}

// Config holds the pairing policy.
type Config struct {
	// Spread is added to the fill price of a Buy open (and subtracted for a
	// Sell open) to place the exit.
	Spread quant.Price4
	// CloseOffset selects Close or CloseToday for generated exits. Some
	// venues price same-day closes differently; this is a policy knob, not
	// logic.
	CloseOffset domain.Offset
}

// Engine synthesizes closing orders. It is stateless: exactly-once pairing is
// enforced by the opponent link in the registry, checked by the caller under
// the loop's single-writer discipline.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.CloseOffset != domain.Close && cfg.CloseOffset != domain.CloseToday {
		cfg.CloseOffset = domain.Close
	}
	return &Engine{cfg: cfg}
}

// Eligible reports whether an order qualifies for pairing: an Open order that
// is Finished and has no opponent yet. Redelivered Finished events fail the
// opponent check and are absorbed.
func (e *Engine) Eligible(o domain.OrderRecord) bool {
	return o.Offset == domain.Open &&
		o.State == domain.StateFinished &&
		o.OpponentLocalID == "" &&
		!o.Frozen
}

// CloseRequestFor computes the exit for a filled opening order: direction
// flipped, full original volume, fill price moved by the spread in the
// profitable direction.
func (e *Engine) CloseRequestFor(o domain.OrderRecord, fillPrice quant.Price4) CloseRequest {
	price := fillPrice
	if o.Direction == domain.Buy {
		price = quant.Price4(safe.Add(int64(fillPrice), int64(e.cfg.Spread)))
	} else {
		price = quant.Price4(safe.Sub(int64(fillPrice), int64(e.cfg.Spread)))
	}
	return CloseRequest{
		Symbol:    o.Symbol,
		Direction: o.Direction.Opposite(),
		Offset:    e.cfg.CloseOffset,
		Price:     price,
		Volume:    o.VolumeOriginal,
	}
}
