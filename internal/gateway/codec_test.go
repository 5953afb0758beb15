package gateway

import (
	"encoding/json"
	"strings"
	"testing"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
	"scalp_go/pkg/quant"
)

func TestDecodeQuote(t *testing.T) {
	raw := []byte(`{"kind":"quote","data":{"symbol":"SHFE.cu2609","bid":"4499.5","ask":"4500","ts":"1700000000123"}}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	q, ok := ev.(*event.QuoteChangedEvent)
	if !ok {
		t.Fatalf("decoded %T, want QuoteChangedEvent", ev)
	}
	if q.Symbol != "SHFE.cu2609" {
		t.Fatalf("symbol = %q", q.Symbol)
	}
	if q.BidPrice != 44995000 || q.AskPrice != 45000000 {
		t.Fatalf("bid/ask = %d/%d", q.BidPrice, q.AskPrice)
	}
	if q.Ts != 1700000000123000 {
		t.Fatalf("ts = %d, want micros", q.Ts)
	}
	if q.Seq != 0 {
		t.Fatalf("seq = %d, codec must leave stamping to the worker", q.Seq)
	}
}

func TestDecodeOrder(t *testing.T) {
	tests := []struct {
		name   string
		status string
		alive  bool
	}{
		{"alive", "ALIVE", true},
		{"finished", "FINISHED", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"kind":"order","data":{"order_id":"V1","status":"` + tt.status + `","volume_left":3,"ts":"1700000000123"}}`)
			ev, err := DecodeEvent(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			o, ok := ev.(*event.OrderChangedEvent)
			if !ok {
				t.Fatalf("decoded %T, want OrderChangedEvent", ev)
			}
			if o.VenueID != "V1" || o.Alive != tt.alive || o.VolumeLeft != 3 {
				t.Fatalf("decoded order = %+v", o)
			}
		})
	}
}

func TestDecodeTrade(t *testing.T) {
	raw := []byte(`{"kind":"trade","data":{"trade_id":"T1","order_id":"V1","price":"4500.5","volume":2,"ts":"1700000000123"}}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tr, ok := ev.(*event.TradeArrivedEvent)
	if !ok {
		t.Fatalf("decoded %T, want TradeArrivedEvent", ev)
	}
	want := domain.TradeRecord{
		TradeID: "T1", VenueID: "V1",
		Price: 45005000, Volume: 2, Ts: 1700000000123000,
	}
	if tr.Trade != want {
		t.Fatalf("trade = %+v, want %+v", tr.Trade, want)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown kind", `{"kind":"nope","data":{}}`, "unknown wire kind"},
		{"bad envelope", `{`, "decode envelope"},
		{"bad price", `{"kind":"quote","data":{"symbol":"S","bid":"abc","ask":"1","ts":"1"}}`, "parse price"},
		{"sub-tick price", `{"kind":"quote","data":{"symbol":"S","bid":"1.00005","ask":"1","ts":"1"}}`, "finer than tick scale"},
		{"bad ts", `{"kind":"quote","data":{"symbol":"S","bid":"1","ask":"1","ts":"later"}}`, "parse timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEncodeSubmit(t *testing.T) {
	data, err := EncodeSubmit(OrderRequest{
		LocalID:   "L1",
		Symbol:    "SHFE.cu2609",
		Direction: domain.Buy,
		Offset:    domain.Open,
		Price:     quant.ToPrice4(4500.5),
		Volume:    2,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var env struct {
		Kind string     `json:"kind"`
		Data wireSubmit `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Kind != "submit" {
		t.Fatalf("kind = %q", env.Kind)
	}
	want := wireSubmit{
		ClientID: "L1", Symbol: "SHFE.cu2609",
		Direction: "BUY", Offset: "OPEN",
		Price: "4500.5", Volume: 2,
	}
	if env.Data != want {
		t.Fatalf("submit frame = %+v, want %+v", env.Data, want)
	}
}

func TestEncodeCancel(t *testing.T) {
	data, err := EncodeCancel("V1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env struct {
		Kind string `json:"kind"`
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Kind != "cancel" || env.Data.OrderID != "V1" {
		t.Fatalf("cancel frame = %+v", env)
	}
}
