package gateway

import (
	"context"
	"testing"
	"time"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
	"scalp_go/pkg/quant"
)

func newTestSim() (*SimGateway, chan event.Event) {
	inbox := make(chan event.Event, 64)
	var seq uint64
	sim := NewSim(inbox, &seq)
	sim.Clock = func() quant.TimeStamp { return 1000 }
	return sim, inbox
}

func recvEvent(t *testing.T, inbox chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-inbox:
		return ev
	default:
		t.Fatal("no event in inbox")
		return nil
	}
}

func TestSimSubmitAck(t *testing.T) {
	sim, inbox := newTestSim()
	venueID, err := sim.SubmitOrder(context.Background(), OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Buy, Offset: domain.Open,
		Price: quant.ToPrice4(100), Volume: 2,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if venueID == "" {
		t.Fatal("empty venue id")
	}

	ack, ok := recvEvent(t, inbox).(*event.OrderChangedEvent)
	if !ok {
		t.Fatal("first event is not an order ack")
	}
	if ack.VenueID != venueID || !ack.Alive || ack.VolumeLeft != 2 {
		t.Fatalf("ack = %+v", ack)
	}
	if ack.Seq == 0 {
		t.Fatal("ack not sequence-stamped")
	}
}

func TestSimFillOnCross(t *testing.T) {
	sim, inbox := newTestSim()
	ctx := context.Background()

	buyID, _ := sim.SubmitOrder(ctx, OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Buy, Offset: domain.Open,
		Price: quant.ToPrice4(100), Volume: 2,
	})
	recvEvent(t, inbox) // ack

	// Ask above the limit: nothing fills.
	sim.PushQuote("S", quant.ToPrice4(100), quant.ToPrice4(101))
	if _, ok := recvEvent(t, inbox).(*event.QuoteChangedEvent); !ok {
		t.Fatal("expected quote event")
	}
	select {
	case ev := <-inbox:
		t.Fatalf("unexpected event %T before cross", ev)
	default:
	}

	// Ask trades through the limit: full fill, trade before terminal report.
	sim.PushQuote("S", quant.ToPrice4(99), quant.ToPrice4(100))
	recvEvent(t, inbox) // quote
	tr, ok := recvEvent(t, inbox).(*event.TradeArrivedEvent)
	if !ok {
		t.Fatal("expected trade event before terminal report")
	}
	if tr.Trade.VenueID != buyID || tr.Trade.Volume != 2 || tr.Trade.Price != quant.ToPrice4(100) {
		t.Fatalf("trade = %+v", tr.Trade)
	}
	fin, ok := recvEvent(t, inbox).(*event.OrderChangedEvent)
	if !ok || fin.Alive || fin.VolumeLeft != 0 {
		t.Fatalf("terminal report = %+v", fin)
	}

	// The order is gone from the book: another cross fills nothing.
	sim.PushQuote("S", quant.ToPrice4(99), quant.ToPrice4(100))
	recvEvent(t, inbox) // quote
	select {
	case ev := <-inbox:
		t.Fatalf("refilled a finished order: %T", ev)
	default:
	}
}

func TestSimSellFillsAgainstBid(t *testing.T) {
	sim, inbox := newTestSim()
	ctx := context.Background()

	sim.SubmitOrder(ctx, OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Sell, Offset: domain.Close,
		Price: quant.ToPrice4(101), Volume: 2,
	})
	recvEvent(t, inbox) // ack

	sim.PushQuote("S", quant.ToPrice4(101), quant.ToPrice4(102))
	recvEvent(t, inbox) // quote
	if _, ok := recvEvent(t, inbox).(*event.TradeArrivedEvent); !ok {
		t.Fatal("sell did not fill when bid reached its limit")
	}
}

func TestSimCancel(t *testing.T) {
	sim, inbox := newTestSim()
	ctx := context.Background()

	venueID, _ := sim.SubmitOrder(ctx, OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Buy, Offset: domain.Open,
		Price: quant.ToPrice4(100), Volume: 2,
	})
	recvEvent(t, inbox) // ack

	if err := sim.CancelOrder(ctx, venueID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ev, ok := recvEvent(t, inbox).(*event.OrderChangedEvent)
	if !ok || ev.Alive || ev.VolumeLeft != 2 {
		t.Fatalf("cancel report = %+v", ev)
	}

	// Canceling twice is a quiet no-op, unknown ids are not.
	if err := sim.CancelOrder(ctx, venueID); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	select {
	case ev := <-inbox:
		t.Fatalf("re-cancel emitted %T", ev)
	default:
	}
	if err := sim.CancelOrder(ctx, "GHOST"); err == nil {
		t.Fatal("cancel of unknown order succeeded")
	}
}

func TestSimFullInboxDoesNotBlock(t *testing.T) {
	inbox := make(chan event.Event, 1)
	var seq uint64
	sim := NewSim(inbox, &seq)
	sim.Clock = func() quant.TimeStamp { return 1000 }
	ctx := context.Background()

	// Consumes the single slot.
	if _, err := sim.SubmitOrder(ctx, OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Buy, Offset: domain.Open,
		Price: quant.ToPrice4(100), Volume: 2,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sim.PushQuote("S", quant.ToPrice4(99), quant.ToPrice4(100))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full inbox")
	}
	if sim.DroppedEvents() == 0 {
		t.Fatal("overflow not counted")
	}
}

func TestSimDuplicateDelivery(t *testing.T) {
	sim, inbox := newTestSim()
	sim.DuplicateDelivery = true
	ctx := context.Background()

	sim.SubmitOrder(ctx, OrderRequest{
		LocalID: "L1", Symbol: "S", Direction: domain.Buy, Offset: domain.Open,
		Price: quant.ToPrice4(100), Volume: 2,
	})
	recvEvent(t, inbox) // ack

	sim.PushQuote("S", quant.ToPrice4(99), quant.ToPrice4(100))
	recvEvent(t, inbox) // quote

	var trades, terminals int
	seqs := make(map[uint64]bool)
	for i := 0; i < 4; i++ {
		ev := recvEvent(t, inbox)
		if seqs[ev.GetSeq()] {
			t.Fatalf("sequence %d reused", ev.GetSeq())
		}
		seqs[ev.GetSeq()] = true
		switch e := ev.(type) {
		case *event.TradeArrivedEvent:
			trades++
			if e.Trade.TradeID == "" {
				t.Fatal("empty trade id")
			}
		case *event.OrderChangedEvent:
			terminals++
		}
	}
	if trades != 2 || terminals != 2 {
		t.Fatalf("duplicated delivery = %d trades, %d terminal reports; want 2 and 2", trades, terminals)
	}
}
