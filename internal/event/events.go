package event

import (
	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvQuoteChanged Type = iota + 1
	EvOrderChanged
	EvTradeArrived
	EvTimerTick
)

// Event is the interface for all reconciliation loop events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// QuoteChangedEvent carries the venue's best bid/ask for the traded symbol.
type QuoteChangedEvent struct {
	BaseEvent
	Symbol   string       `json:"symbol"`
	BidPrice quant.Price4 `json:"bid,string"`
	AskPrice quant.Price4 `json:"ask,string"`
}

func (e QuoteChangedEvent) GetType() Type { return EvQuoteChanged }

// OrderChangedEvent reports a venue-side order state change. Alive=false with
// VolumeLeft>0 means a full or partial cancel.
type OrderChangedEvent struct {
	BaseEvent
	VenueID    string     `json:"venue_id"`
	Alive      bool       `json:"alive"`
	VolumeLeft quant.Lots `json:"volume_left"`
}

func (e OrderChangedEvent) GetType() Type { return EvOrderChanged }

// TradeArrivedEvent reports one fill. Delivery is at-least-once; the trade id
// is the dedup key.
type TradeArrivedEvent struct {
	BaseEvent
	Trade domain.TradeRecord `json:"trade"`
}

func (e TradeArrivedEvent) GetType() Type { return EvTradeArrived }

// TimerTickEvent drives periodic work (stall detection, session policy).
type TimerTickEvent struct {
	BaseEvent
}

func (e TimerTickEvent) GetType() Type { return EvTimerTick }
