package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
	"scalp_go/pkg/quant"
)

// Wire messages. The venue reports prices as decimal strings; they are parsed
// exactly and scaled to Price4 at this boundary, never through float64.

type wireEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type wireQuote struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Ts     string `json:"ts"`
}

type wireOrder struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"` // "ALIVE" or "FINISHED"
	VolumeLeft int64  `json:"volume_left"`
	Ts         string `json:"ts"`
}

type wireTrade struct {
	TradeID string `json:"trade_id"`
	OrderID string `json:"order_id"`
	Price   string `json:"price"`
	Volume  int64  `json:"volume"`
	Ts      string `json:"ts"`
}

type wireSubmit struct {
	ClientID  string `json:"client_id"`
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Offset    string `json:"offset"`
	Price     string `json:"price"`
	Volume    int64  `json:"volume"`
}

// parsePrice4 converts a decimal price string to fixed point.
func parsePrice4(s string) (quant.Price4, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	scaled := d.Mul(decimal.NewFromInt(quant.PriceScale))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("price %q finer than tick scale", s)
	}
	return quant.Price4(scaled.IntPart()), nil
}

// DecodeEvent turns one venue frame into a loop event. The sequence number is
// left zero; the worker stamps it on emission.
func DecodeEvent(raw []byte) (event.Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Kind {
	case "quote":
		var q wireQuote
		if err := json.Unmarshal(env.Data, &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		bid, err := parsePrice4(q.Bid)
		if err != nil {
			return nil, err
		}
		ask, err := parsePrice4(q.Ask)
		if err != nil {
			return nil, err
		}
		ts, err := quant.ParseTimeStamp(q.Ts)
		if err != nil {
			return nil, err
		}
		return &event.QuoteChangedEvent{
			BaseEvent: event.BaseEvent{Ts: ts},
			Symbol:    q.Symbol, BidPrice: bid, AskPrice: ask,
		}, nil

	case "order":
		var o wireOrder
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		ts, err := quant.ParseTimeStamp(o.Ts)
		if err != nil {
			return nil, err
		}
		return &event.OrderChangedEvent{
			BaseEvent: event.BaseEvent{Ts: ts},
			VenueID:   o.OrderID,
			Alive:     o.Status == "ALIVE",
			VolumeLeft: quant.Lots(o.VolumeLeft),
		}, nil

	case "trade":
		var t wireTrade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		price, err := parsePrice4(t.Price)
		if err != nil {
			return nil, err
		}
		ts, err := quant.ParseTimeStamp(t.Ts)
		if err != nil {
			return nil, err
		}
		return &event.TradeArrivedEvent{
			BaseEvent: event.BaseEvent{Ts: ts},
			Trade: domain.TradeRecord{
				TradeID: t.TradeID,
				VenueID: t.OrderID,
				Price:   price,
				Volume:  quant.Lots(t.Volume),
				Ts:      ts,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown wire kind %q", env.Kind)
	}
}

// EncodeSubmit renders an order request as a venue submit frame.
func EncodeSubmit(req OrderRequest) ([]byte, error) {
	msg := wireSubmit{
		ClientID:  req.LocalID,
		Symbol:    req.Symbol,
		Direction: req.Direction.String(),
		Offset:    req.Offset.String(),
		Price:     req.Price.String(),
		Volume:    int64(req.Volume),
	}
	data, err := json.Marshal(struct {
		Kind string     `json:"kind"`
		Data wireSubmit `json:"data"`
	}{Kind: "submit", Data: msg})
	if err != nil {
		return nil, fmt.Errorf("encode submit: %w", err)
	}
	return data, nil
}

// EncodeCancel renders a cancel frame for a venue order id.
func EncodeCancel(venueID string) ([]byte, error) {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}{Kind: "cancel", Data: struct {
		OrderID string `json:"order_id"`
	}{OrderID: venueID}})
	if err != nil {
		return nil, fmt.Errorf("encode cancel: %w", err)
	}
	return data, nil
}
