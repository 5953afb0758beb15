package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
	"scalp_go/pkg/quant"
)

// SimGateway is an in-process venue used by paper mode and tests. Resting
// limit orders fill fully when the opposite side of the quote crosses them.
// Event delivery mimics the live venue: at-least-once, acknowledgment before
// fills, and optionally duplicated terminal reports.
type SimGateway struct {
	inbox   chan<- event.Event
	nextSeq *uint64

	mu     sync.Mutex
	orders map[string]*simOrder
	nextID int

	// DuplicateDelivery re-emits every Finished report and trade once more,
	// exercising the consumer's idempotence.
	DuplicateDelivery bool

	// Clock is swappable for deterministic tests.
	Clock func() quant.TimeStamp

	dropped uint64
}

type simOrder struct {
	req   OrderRequest
	id    string
	left  quant.Lots
	alive bool
}

func NewSim(inbox chan<- event.Event, nextSeq *uint64) *SimGateway {
	return &SimGateway{
		inbox:   inbox,
		nextSeq: nextSeq,
		orders:  make(map[string]*simOrder),
		Clock:   func() quant.TimeStamp { return quant.TimeStamp(time.Now().UnixMicro()) },
	}
}

// SubmitOrder accepts the order, assigns a venue id and reports it resting.
func (s *SimGateway) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o := &simOrder{
		req:   req,
		id:    fmt.Sprintf("SIM-%d", s.nextID),
		left:  req.Volume,
		alive: true,
	}
	s.orders[o.id] = o

	s.emit(&event.OrderChangedEvent{
		BaseEvent:  event.BaseEvent{Ts: s.Clock()},
		VenueID:    o.id,
		Alive:      true,
		VolumeLeft: o.left,
	})
	return o.id, nil
}

// CancelOrder cancels a resting order; the effect arrives as an event, like
// any other venue mutation.
func (s *SimGateway) CancelOrder(ctx context.Context, venueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[venueID]
	if !ok {
		return fmt.Errorf("sim: order %s not found", venueID)
	}
	if !o.alive {
		return nil
	}
	o.alive = false
	s.emit(&event.OrderChangedEvent{
		BaseEvent:  event.BaseEvent{Ts: s.Clock()},
		VenueID:    o.id,
		Alive:      false,
		VolumeLeft: o.left,
	})
	return nil
}

func (s *SimGateway) Close() error { return nil }

// PushQuote publishes a quote and matches resting orders against it. A buy
// fills when the ask trades at or through its limit; a sell against the bid.
func (s *SimGateway) PushQuote(symbol string, bid, ask quant.Price4) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emit(&event.QuoteChangedEvent{
		BaseEvent: event.BaseEvent{Ts: s.Clock()},
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
	})

	for _, o := range s.orders {
		if !o.alive || o.req.Symbol != symbol {
			continue
		}
		buyCrossed := o.req.Direction == domain.Buy && ask <= o.req.Price
		sellCrossed := o.req.Direction == domain.Sell && bid >= o.req.Price
		if !buyCrossed && !sellCrossed {
			continue
		}
		s.fill(o)
	}
}

func (s *SimGateway) fill(o *simOrder) {
	volume := o.left
	o.left = 0
	o.alive = false

	trade := &event.TradeArrivedEvent{
		BaseEvent: event.BaseEvent{Ts: s.Clock()},
	}
	trade.Trade.TradeID = fmt.Sprintf("%s-T1", o.id)
	trade.Trade.VenueID = o.id
	trade.Trade.Price = o.req.Price
	trade.Trade.Volume = volume
	trade.Trade.Ts = trade.Ts

	finished := &event.OrderChangedEvent{
		BaseEvent:  event.BaseEvent{Ts: s.Clock()},
		VenueID:    o.id,
		Alive:      false,
		VolumeLeft: 0,
	}

	s.emit(trade)
	s.emit(finished)
	if s.DuplicateDelivery {
		dupTrade := *trade
		dupFinished := *finished
		s.emit(&dupTrade)
		s.emit(&dupFinished)
	}

	slog.Debug("sim fill", slog.String("venue_id", o.id),
		slog.String("price", o.req.Price.String()), slog.Int64("volume", int64(volume)))
}

// emit stamps a fresh sequence number and delivers into the loop inbox.
// Separate events get separate numbers even when duplicated: the venue never
// promises gapless streams, only at-least-once content.
//
// The send must not block: the loop calls SubmitOrder from inside its own
// dispatch, so a full inbox would deadlock the hotpath against this venue.
// An overflowing inbox counts and drops the event instead, which reads as
// lost venue connectivity.
func (s *SimGateway) emit(ev event.Event) {
	switch e := ev.(type) {
	case *event.QuoteChangedEvent:
		e.Seq = quant.NextSeq(s.nextSeq)
	case *event.OrderChangedEvent:
		e.Seq = quant.NextSeq(s.nextSeq)
	case *event.TradeArrivedEvent:
		e.Seq = quant.NextSeq(s.nextSeq)
	}
	select {
	case s.inbox <- ev:
	default:
		atomic.AddUint64(&s.dropped, 1)
		slog.Error("sim inbox full, event dropped",
			slog.Uint64("seq", ev.GetSeq()), slog.Any("type", ev.GetType()))
	}
}

// DroppedEvents reports how many events hit a full inbox and were discarded.
func (s *SimGateway) DroppedEvents() uint64 {
	return atomic.LoadUint64(&s.dropped)
}
