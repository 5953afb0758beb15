package strategy

import (
	"time"

	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
)

// Scalping bids at the best bid during trading hours and lets the pairing
// engine take each fill back out one spread higher. It holds no indicator
// state: edge comes from queue position and the spread, not prediction.
type Scalping struct {
	symbol  string
	volume  quant.Lots
	session *Session

	// clock is swappable for deterministic tests.
	clock func() time.Time
}

func NewScalping(symbol string, volumePerOrder quant.Lots, session *Session) *Scalping {
	return &Scalping{
		symbol:  symbol,
		volume:  volumePerOrder,
		session: session,
		clock:   time.Now,
	}
}

// OnQuote wants one opening buy at the bid whenever the market is open.
// Admission control decides whether the book can take another order.
func (s *Scalping) OnQuote(q Quote) (Signal, bool) {
	if q.Symbol != s.symbol {
		return Signal{}, false
	}
	if !s.session.InSession(s.clock()) {
		return Signal{}, false
	}
	if q.Bid <= 0 {
		return Signal{}, false
	}
	return Signal{
		Direction: domain.Buy,
		Price:     q.Bid,
		Volume:    s.volume,
	}, true
}
