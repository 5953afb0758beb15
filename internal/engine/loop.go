package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
	"scalp_go/internal/gateway"
	"scalp_go/internal/pairing"
	"scalp_go/internal/registry"
	"scalp_go/internal/storage"
	"scalp_go/internal/strategy"
	"scalp_go/pkg/quant"
	"scalp_go/pkg/safe"
)

// Config holds the loop's trading parameters.
type Config struct {
	Symbol string

	// Admission control.
	MaxPosition    quant.Lots // total committed lots cap
	VolumePerOrder quant.Lots // lots per opening order
	VolumePerPrice quant.Lots // resting lots cap across best bid + best ask

	InboxSize    int
	StallTimeout time.Duration

	// FlattenBeforeClose cancels all resting orders shortly before a
	// session window ends.
	FlattenBeforeClose bool
	Session            *strategy.Session
	FlattenMargin      time.Duration
}

// Loop is the single-threaded reconciliation driver. It exclusively owns the
// registry; gateway workers only feed the inbox. Each event is journaled
// before it is applied, and every state change is journaled before the
// outbound request it motivates is sent.
type Loop struct {
	cfg     Config
	inbox   chan event.Event
	reg     *registry.Registry
	pair    *pairing.Engine
	journal *storage.Journal
	gw      gateway.Gateway
	strat   strategy.Strategy

	quote     strategy.Quote
	haveQuote bool
	flattened bool

	clock func() time.Time

	// mu guards external snapshot reads only; the hotpath is the sole
	// writer.
	mu sync.RWMutex
}

func New(cfg Config, journal *storage.Journal, gw gateway.Gateway, pair *pairing.Engine, strat strategy.Strategy) *Loop {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 30 * time.Second
	}
	if cfg.FlattenMargin <= 0 {
		cfg.FlattenMargin = 2 * time.Minute
	}
	return &Loop{
		cfg:     cfg,
		inbox:   make(chan event.Event, cfg.InboxSize),
		reg:     registry.New(),
		pair:    pair,
		journal: journal,
		gw:      gw,
		strat:   strat,
		clock:   time.Now,
	}
}

// Inbox returns the event channel. Gateway workers send events here.
func (l *Loop) Inbox() chan<- event.Event {
	return l.inbox
}

// AttachGateway sets the outbound venue. The gateway usually needs the loop's
// inbox first, so it cannot be passed at construction. Must be called before
// Run.
func (l *Loop) AttachGateway(gw gateway.Gateway) {
	l.gw = gw
}

// Recover rebuilds the registry from the journal. Pairing links and applied
// trade ids come back with the records, so redelivered Finished events after
// a restart cannot pair twice.
func (l *Loop) Recover(ctx context.Context) error {
	if l.journal == nil {
		slog.Info("no journal configured, starting fresh")
		return nil
	}
	records, err := l.journal.LoadOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}
	trades, err := l.journal.LoadTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}
	l.reg.Restore(records, trades)
	slog.Info("registry recovered from journal",
		slog.Int("orders", len(records)), slog.Int("trades", len(trades)))
	return nil
}

// ResubmitPending re-emits recovered intents that never received a venue
// acknowledgment: records journaled with an empty venue id. The submission
// decision was already durable before the crash, so completing the emission
// is the write-ahead contract, not a new decision. The local id doubles as
// the wire client id, letting a venue that did receive the original frame
// deduplicate. Call after the gateway is attached and before Run.
func (l *Loop) ResubmitPending(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.reg.Snapshot() {
		if rec.VenueID != "" || !rec.State.IsAlive() || rec.Frozen {
			continue
		}
		slog.Warn("resubmitting unacknowledged intent",
			slog.String("local_id", rec.LocalID),
			slog.String("direction", rec.Direction.String()),
			slog.String("offset", rec.Offset.String()),
			slog.String("price", rec.LimitPrice.String()))
		l.submit(ctx, rec.LocalID, gateway.OrderRequest{
			LocalID:   rec.LocalID,
			Symbol:    rec.Symbol,
			Direction: rec.Direction,
			Offset:    rec.Offset,
			Price:     rec.LimitPrice,
			Volume:    rec.VolumeLeft,
		})
	}
}

// Run starts the main event loop. This MUST run in a single goroutine.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("reconciliation loop started")
	stall := time.NewTimer(l.cfg.StallTimeout)
	defer stall.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation loop stopping")
			return
		case ev := <-l.inbox:
			l.process(ctx, ev)
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(l.cfg.StallTimeout)
		case <-stall.C:
			// No venue traffic inside the window. Possibly a connectivity
			// stall; not fatal, keep polling.
			slog.Warn("no venue events within stall timeout",
				slog.Duration("timeout", l.cfg.StallTimeout))
			stall.Reset(l.cfg.StallTimeout)
		}
	}
}

// process journals then applies one event. Write-ahead: the journal write
// precedes any state change or outbound emission the event causes.
func (l *Loop) process(ctx context.Context, ev event.Event) {
	if l.journal != nil {
		if err := l.journal.SaveEvent(ctx, ev); err != nil {
			// Losing the journal means losing restart safety. Halt.
			panic(fmt.Sprintf("journal write failed: %v", err))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatch(ctx, ev)
}

// ReplayEvent applies an event without journaling. Used by the replay tool
// to reconstruct state from an existing journal through the same code path.
func (l *Loop) ReplayEvent(ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatch(context.Background(), ev)
}

func (l *Loop) dispatch(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case *event.QuoteChangedEvent:
		l.handleQuote(ctx, e)
	case *event.OrderChangedEvent:
		l.handleOrderChanged(ctx, e)
	case *event.TradeArrivedEvent:
		l.handleTrade(ctx, e)
	case *event.TimerTickEvent:
		l.handleTick(ctx)
	default:
		slog.Warn("unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (l *Loop) handleOrderChanged(ctx context.Context, e *event.OrderChangedEvent) {
	res, err := l.reg.ApplyOrderUpdate(e.VenueID, e.Alive, e.VolumeLeft, e.Ts)
	if err != nil {
		// Unknown orders and consistency violations are fatal for that
		// order only; the rest of the book still needs reconciliation.
		l.reportOrderError("order update rejected", e.VenueID, err)
		l.persistOrderByVenue(ctx, e.VenueID)
		return
	}
	if res.Ignored {
		return
	}
	l.persistOrder(ctx, res.Record)

	if res.NewlyFinished {
		l.pairFinished(ctx, res.Record)
	}
}

func (l *Loop) handleTrade(ctx context.Context, e *event.TradeArrivedEvent) {
	applied, err := l.reg.ApplyTrade(e.Trade)
	if err != nil {
		l.reportOrderError("trade rejected", e.Trade.VenueID, err)
		l.persistOrderByVenue(ctx, e.Trade.VenueID)
		return
	}
	if !applied {
		// Duplicate delivery, expected under at-least-once semantics.
		return
	}
	if l.journal != nil {
		if err := l.journal.InsertTrade(ctx, e.Trade); err != nil {
			panic(fmt.Sprintf("journal write failed: %v", err))
		}
	}
	l.persistOrderByVenue(ctx, e.Trade.VenueID)
}

func (l *Loop) handleQuote(ctx context.Context, e *event.QuoteChangedEvent) {
	l.quote = strategy.Quote{Symbol: e.Symbol, Bid: e.BidPrice, Ask: e.AskPrice, Ts: e.Ts}
	l.haveQuote = true

	if l.maybeFlatten(ctx) {
		return
	}
	l.maybeOpen(ctx)
}

func (l *Loop) handleTick(ctx context.Context) {
	l.maybeFlatten(ctx)
}

// pairFinished generates the closing order for a fully-filled opening order.
// The opponent links and both records are journaled before the submission
// leaves the process, so a crash in between cannot pair twice on restart.
func (l *Loop) pairFinished(ctx context.Context, rec domain.OrderRecord) {
	if !l.pair.Eligible(rec) {
		return
	}
	fillPrice, err := l.reg.FillPrice(rec.LocalID)
	if err != nil {
		l.reportOrderError("fill price unavailable", rec.VenueID, err)
		return
	}

	req := l.pair.CloseRequestFor(rec, fillPrice)
	now := quant.TimeStamp(l.clock().UnixMicro())
	closeLocal := l.reg.SubmitIntent(req.Symbol, req.Direction, req.Offset, req.Price, req.Volume, now)
	if err := l.reg.LinkOpponents(rec.LocalID, closeLocal); err != nil {
		// Lost the pairing race against a redelivered event; must not
		// happen under single-writer discipline.
		slog.Error("pairing link failed", slog.String("local_id", rec.LocalID), slog.Any("error", err))
		return
	}

	openRec, _ := l.reg.GetLocal(rec.LocalID)
	closeRec, _ := l.reg.GetLocal(closeLocal)
	l.persistOrder(ctx, openRec)
	l.persistOrder(ctx, closeRec)

	slog.Info("pairing close order",
		slog.String("open_venue_id", rec.VenueID),
		slog.String("direction", req.Direction.String()),
		slog.String("price", req.Price.String()),
		slog.Int64("volume", int64(req.Volume)))

	l.submit(ctx, closeLocal, gateway.OrderRequest{
		LocalID:   closeLocal,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Offset:    req.Offset,
		Price:     req.Price,
		Volume:    req.Volume,
	})
}

// maybeOpen asks the strategy for an opening signal and submits it when
// admission control allows. Rejection is a normal quiet outcome.
func (l *Loop) maybeOpen(ctx context.Context) {
	if l.strat == nil || !l.haveQuote {
		return
	}
	sig, ok := l.strat.OnQuote(l.quote)
	if !ok {
		return
	}
	if !l.admit(sig) {
		return
	}

	now := quant.TimeStamp(l.clock().UnixMicro())
	localID := l.reg.SubmitIntent(l.cfg.Symbol, sig.Direction, domain.Open, sig.Price, sig.Volume, now)
	rec, _ := l.reg.GetLocal(localID)
	l.persistOrder(ctx, rec)

	l.submit(ctx, localID, gateway.OrderRequest{
		LocalID:   localID,
		Symbol:    l.cfg.Symbol,
		Direction: sig.Direction,
		Offset:    domain.Open,
		Price:     sig.Price,
		Volume:    sig.Volume,
	})
}

// admit applies the position and per-price exposure caps: total committed
// lots stay under MaxPosition, and resting lots across the touch prices plus
// this order stay under VolumePerPrice.
func (l *Loop) admit(sig strategy.Signal) bool {
	exposure := safe.Add(int64(l.reg.TotalPositionExposure()), int64(sig.Volume))
	if exposure > int64(l.cfg.MaxPosition) {
		return false
	}
	atTouch := safe.Add(
		int64(l.reg.RestingVolumeAt(l.quote.Bid)),
		int64(l.reg.RestingVolumeAt(l.quote.Ask)),
	)
	return safe.Add(atTouch, int64(sig.Volume)) <= int64(l.cfg.VolumePerPrice)
}

// maybeFlatten cancels all resting orders shortly before a session window
// closes. Returns true when the flatten is in effect this quote.
func (l *Loop) maybeFlatten(ctx context.Context) bool {
	if !l.cfg.FlattenBeforeClose || l.cfg.Session == nil {
		return false
	}
	if !l.cfg.Session.AboutToClose(l.clock(), l.cfg.FlattenMargin) {
		l.flattened = false
		return false
	}
	if l.flattened {
		return true
	}
	for _, venueID := range l.reg.CancelCandidates() {
		if err := l.gw.CancelOrder(ctx, venueID); err != nil {
			slog.Warn("session flatten cancel failed",
				slog.String("venue_id", venueID), slog.Any("error", err))
		}
	}
	l.flattened = true
	slog.Info("session flatten: canceled resting orders")
	return true
}

// submit sends an already-journaled intent to the venue and binds the
// acknowledged venue id.
func (l *Loop) submit(ctx context.Context, localID string, req gateway.OrderRequest) {
	venueID, err := l.gw.SubmitOrder(ctx, req)
	if err != nil {
		slog.Error("order submission failed",
			slog.String("local_id", localID), slog.Any("error", err))
		return
	}
	now := quant.TimeStamp(l.clock().UnixMicro())
	if err := l.reg.BindVenueID(localID, venueID, now); err != nil {
		slog.Error("venue id bind failed",
			slog.String("local_id", localID), slog.Any("error", err))
		return
	}
	rec, _ := l.reg.GetLocal(localID)
	l.persistOrder(ctx, rec)
}

func (l *Loop) persistOrder(ctx context.Context, rec domain.OrderRecord) {
	if l.journal == nil {
		return
	}
	if err := l.journal.UpsertOrder(ctx, rec); err != nil {
		panic(fmt.Sprintf("journal write failed: %v", err))
	}
}

// persistOrderByVenue journals the latest view of an order, including frozen
// flags set by a rejected update.
func (l *Loop) persistOrderByVenue(ctx context.Context, venueID string) {
	rec, ok := l.reg.Get(venueID)
	if !ok {
		return
	}
	l.persistOrder(ctx, rec)
}

func (l *Loop) reportOrderError(msg, venueID string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownOrder):
		slog.Error(msg, slog.String("venue_id", venueID),
			slog.String("class", "unknown_order"), slog.Any("error", err))
	case domain.IsConsistency(err):
		slog.Error(msg, slog.String("venue_id", venueID),
			slog.String("class", "consistency"), slog.Any("error", err))
	default:
		slog.Error(msg, slog.String("venue_id", venueID), slog.Any("error", err))
	}
}

// Snapshot returns copies of all order records (external read).
func (l *Loop) Snapshot() []domain.OrderRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Snapshot()
}

// Order returns a copy of one record by venue id (external read).
func (l *Loop) Order(venueID string) (domain.OrderRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Get(venueID)
}

// RestingVolumeAt reports resting lots at a price (external read).
func (l *Loop) RestingVolumeAt(price quant.Price4) quant.Lots {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.RestingVolumeAt(price)
}

// Exposure reports total committed lots (external read).
func (l *Loop) Exposure() quant.Lots {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.TotalPositionExposure()
}
