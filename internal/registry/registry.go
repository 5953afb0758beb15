package registry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scalp_go/internal/domain"
	"scalp_go/pkg/quant"
	"scalp_go/pkg/safe"
)

// Registry owns the canonical set of order records and classifies them into
// lifecycle buckets. It is single-writer: only the reconciliation loop
// mutates it. Everything handed out is a copy.
type Registry struct {
	byLocal      map[string]*domain.OrderRecord
	venueToLocal map[string]string
	trades       map[string]domain.TradeRecord
	prices       *priceIndex
	dedup        *tradeDedup

	// realized is the net open position in lots, built up from Open fills
	// and worked off by Close fills.
	realized quant.Lots
}

// UpdateResult describes the effect of one applied order update.
type UpdateResult struct {
	Record domain.OrderRecord
	// NewlyFinished is true when this update moved the order into Finished.
	// Duplicate finished deliveries report false.
	NewlyFinished bool
	// Ignored is true when the update targeted a terminal record and was
	// dropped for state purposes.
	Ignored bool
}

func New() *Registry {
	return &Registry{
		byLocal:      make(map[string]*domain.OrderRecord),
		venueToLocal: make(map[string]string),
		trades:       make(map[string]domain.TradeRecord),
		prices:       newPriceIndex(),
		dedup:        newTradeDedup(),
	}
}

// SubmitIntent creates a provisional resting record keyed by a generated
// local id. No venue interaction happens here.
func (r *Registry) SubmitIntent(symbol string, d domain.Direction, off domain.Offset, price quant.Price4, volume quant.Lots, now quant.TimeStamp) string {
	rec := &domain.OrderRecord{
		LocalID:        uuid.NewString(),
		Symbol:         symbol,
		Direction:      d,
		Offset:         off,
		LimitPrice:     price,
		VolumeOriginal: volume,
		VolumeLeft:     volume,
		State:          domain.StateResting,
		InsertTime:     now,
		LastUpdateTime: now,
	}
	r.byLocal[rec.LocalID] = rec
	r.prices.insert(price, rec.LocalID)
	return rec.LocalID
}

// BindVenueID re-keys a provisional record once the venue acknowledges it.
func (r *Registry) BindVenueID(localID, venueID string, insertTime quant.TimeStamp) error {
	rec, ok := r.byLocal[localID]
	if !ok {
		return fmt.Errorf("bind %s: %w", localID, domain.ErrNotFound)
	}
	if rec.VenueID != "" {
		return fmt.Errorf("bind %s: %w", localID, domain.ErrAlreadyBound)
	}
	rec.VenueID = venueID
	rec.InsertTime = insertTime
	r.venueToLocal[venueID] = localID
	return nil
}

// ApplyOrderUpdate transitions an order per the venue's (alive, volume_left)
// report. Unknown venue ids are fatal for the stream that produced them: a
// missed submission record cannot be guessed around.
func (r *Registry) ApplyOrderUpdate(venueID string, alive bool, left quant.Lots, ts quant.TimeStamp) (UpdateResult, error) {
	rec, err := r.byVenue(venueID)
	if err != nil {
		return UpdateResult{}, err
	}
	if rec.Frozen {
		return UpdateResult{}, &domain.ConsistencyError{
			LocalID: rec.LocalID, VenueID: venueID, Reason: domain.ReasonRecordFrozen,
		}
	}
	if rec.State.IsTerminal() {
		// Redelivered terminal reports carry no new state. Late trades for
		// the same order still go through ApplyTrade.
		slog.Debug("order update for terminal order ignored",
			slog.String("venue_id", venueID), slog.String("state", rec.State.String()))
		return UpdateResult{Record: *rec, Ignored: true}, nil
	}
	if left > rec.VolumeLeft {
		return UpdateResult{}, r.freeze(rec, domain.ReasonVolumeIncreased)
	}

	next, err := domain.NextState(alive, left, rec.VolumeOriginal)
	if err != nil {
		ce := err.(*domain.ConsistencyError)
		return UpdateResult{}, r.freeze(rec, ce.Reason)
	}

	wasAlive := rec.State.IsAlive()
	rec.VolumeLeft = left
	rec.State = next
	rec.LastUpdateTime = ts
	if wasAlive && !next.IsAlive() {
		// Index removal rides the same transition that ends alive-ness.
		r.prices.remove(rec.LimitPrice, rec.LocalID)
	}

	return UpdateResult{
		Record:        snapshotRecord(rec),
		NewlyFinished: next == domain.StateFinished,
	}, nil
}

// ApplyTrade applies one fill if its trade id has not been seen. Cumulative
// fill volume is recomputed defensively against the venue-reported numbers;
// an overshoot freezes the record rather than adjusting anything.
func (r *Registry) ApplyTrade(tr domain.TradeRecord) (bool, error) {
	if r.dedup.applied(tr.TradeID) {
		return false, nil
	}
	rec, err := r.byVenue(tr.VenueID)
	if err != nil {
		return false, err
	}
	if rec.Frozen {
		return false, &domain.ConsistencyError{
			LocalID: rec.LocalID, VenueID: tr.VenueID, Reason: domain.ReasonRecordFrozen,
		}
	}

	cumulative := safe.Add(int64(r.filledVolume(rec)), int64(tr.Volume))
	if cumulative > int64(rec.VolumeOriginal) {
		return false, r.freeze(rec, domain.ReasonFillOverflow)
	}
	if rec.State.IsTerminal() && cumulative > int64(rec.VolumeOriginal)-int64(rec.VolumeLeft) {
		// A terminal order's fills must add up to exactly the consumed
		// volume. More than that contradicts the venue's own report.
		return false, r.freeze(rec, domain.ReasonFillOverflow)
	}

	r.dedup.mark(tr.TradeID)
	r.trades[tr.TradeID] = tr
	rec.TradeIDs = append(rec.TradeIDs, tr.TradeID)

	switch rec.Offset {
	case domain.Open:
		r.realized = quant.Lots(safe.Add(int64(r.realized), int64(tr.Volume)))
	default:
		r.realized = quant.Lots(safe.Sub(int64(r.realized), int64(tr.Volume)))
		if r.realized < 0 {
			r.realized = 0
		}
	}
	return true, nil
}

// TradeSeen reports whether a trade id has already been applied.
func (r *Registry) TradeSeen(tradeID string) bool {
	return r.dedup.applied(tradeID)
}

// LinkOpponents records the forward and backward pairing links between an
// Open order and its generated Close order. Either link being set already is
// an error: pairing happens exactly once.
func (r *Registry) LinkOpponents(openLocalID, closeLocalID string) error {
	open, ok := r.byLocal[openLocalID]
	if !ok {
		return fmt.Errorf("link %s: %w", openLocalID, domain.ErrNotFound)
	}
	clos, ok := r.byLocal[closeLocalID]
	if !ok {
		return fmt.Errorf("link %s: %w", closeLocalID, domain.ErrNotFound)
	}
	if open.OpponentLocalID != "" || clos.OpponentLocalID != "" {
		return fmt.Errorf("link %s<->%s: %w", openLocalID, closeLocalID, domain.ErrOpponentSet)
	}
	open.OpponentLocalID = closeLocalID
	clos.OpponentLocalID = openLocalID
	return nil
}

// RestingVolumeAt sums volume_left over all alive orders at the given price.
func (r *Registry) RestingVolumeAt(price quant.Price4) quant.Lots {
	var total int64
	for localID := range r.prices.at(price) {
		total = safe.Add(total, int64(r.byLocal[localID].VolumeLeft))
	}
	return quant.Lots(total)
}

// BestOwnPrice returns the highest resting bid (Buy) or lowest resting ask
// (Sell) among this strategy's own alive orders.
func (r *Registry) BestOwnPrice(d domain.Direction) (quant.Price4, bool) {
	var best quant.Price4
	found := false
	for _, rec := range r.byLocal {
		if !rec.Active() || rec.Direction != d {
			continue
		}
		if !found ||
			(d == domain.Buy && rec.LimitPrice > best) ||
			(d == domain.Sell && rec.LimitPrice < best) {
			best = rec.LimitPrice
			found = true
		}
	}
	return best, found
}

// TotalPositionExposure returns committed lots: everything still resting or
// partially working on the book plus the realized open position.
func (r *Registry) TotalPositionExposure() quant.Lots {
	total := int64(r.realized)
	for _, rec := range r.byLocal {
		if rec.Active() && rec.Offset == domain.Open {
			total = safe.Add(total, int64(rec.VolumeLeft))
		}
	}
	return quant.Lots(total)
}

// FillPrice returns the volume-weighted fill price of an order, falling back
// to the limit price when no fills are recorded yet.
func (r *Registry) FillPrice(localID string) (quant.Price4, error) {
	rec, ok := r.byLocal[localID]
	if !ok {
		return 0, fmt.Errorf("fill price %s: %w", localID, domain.ErrNotFound)
	}
	var notional, volume int64
	for _, tid := range rec.TradeIDs {
		tr := r.trades[tid]
		notional = safe.Add(notional, safe.Mul(int64(tr.Price), int64(tr.Volume)))
		volume = safe.Add(volume, int64(tr.Volume))
	}
	if volume == 0 {
		return rec.LimitPrice, nil
	}
	return quant.Price4(safe.Div(notional, volume)), nil
}

// CancelCandidates returns venue ids of every alive order, for the
// end-of-session flatten.
func (r *Registry) CancelCandidates() []string {
	var ids []string
	for _, rec := range r.byLocal {
		if rec.Active() && rec.VenueID != "" {
			ids = append(ids, rec.VenueID)
		}
	}
	return ids
}

// Get returns a copy of the record bound to a venue id.
func (r *Registry) Get(venueID string) (domain.OrderRecord, bool) {
	rec, err := r.byVenue(venueID)
	if err != nil {
		return domain.OrderRecord{}, false
	}
	return snapshotRecord(rec), true
}

// GetLocal returns a copy of the record keyed by local id.
func (r *Registry) GetLocal(localID string) (domain.OrderRecord, bool) {
	rec, ok := r.byLocal[localID]
	if !ok {
		return domain.OrderRecord{}, false
	}
	return snapshotRecord(rec), true
}

// Snapshot returns copies of every record. Order is unspecified.
func (r *Registry) Snapshot() []domain.OrderRecord {
	out := make([]domain.OrderRecord, 0, len(r.byLocal))
	for _, rec := range r.byLocal {
		out = append(out, snapshotRecord(rec))
	}
	return out
}

// Trades returns copies of all applied trades keyed by trade id.
func (r *Registry) Trades() map[string]domain.TradeRecord {
	out := make(map[string]domain.TradeRecord, len(r.trades))
	for k, v := range r.trades {
		out[k] = v
	}
	return out
}

// Restore rebuilds the registry from journaled records and trades, used on
// restart before the loop resynchronizes against the venue.
func (r *Registry) Restore(records []domain.OrderRecord, trades []domain.TradeRecord) {
	for i := range records {
		rec := records[i]
		cp := rec
		cp.TradeIDs = append([]string(nil), rec.TradeIDs...)
		r.byLocal[cp.LocalID] = &cp
		if cp.VenueID != "" {
			r.venueToLocal[cp.VenueID] = cp.LocalID
		}
		if cp.Active() {
			r.prices.insert(cp.LimitPrice, cp.LocalID)
		}
	}
	for _, tr := range trades {
		r.dedup.mark(tr.TradeID)
		r.trades[tr.TradeID] = tr
		rec, err := r.byVenue(tr.VenueID)
		if err != nil {
			continue
		}
		switch rec.Offset {
		case domain.Open:
			r.realized = quant.Lots(safe.Add(int64(r.realized), int64(tr.Volume)))
		default:
			r.realized = quant.Lots(safe.Sub(int64(r.realized), int64(tr.Volume)))
			if r.realized < 0 {
				r.realized = 0
			}
		}
	}
}

// filledVolume sums the volume of every trade already applied to the record.
func (r *Registry) filledVolume(rec *domain.OrderRecord) quant.Lots {
	var total int64
	for _, tid := range rec.TradeIDs {
		total = safe.Add(total, int64(r.trades[tid].Volume))
	}
	return quant.Lots(total)
}

func (r *Registry) byVenue(venueID string) (*domain.OrderRecord, error) {
	localID, ok := r.venueToLocal[venueID]
	if !ok {
		return nil, fmt.Errorf("venue order %s: %w", venueID, domain.ErrUnknownOrder)
	}
	return r.byLocal[localID], nil
}

// freeze flags the record and reports the violation. The venue numbers are
// never adjusted to fit.
func (r *Registry) freeze(rec *domain.OrderRecord, reason string) error {
	if rec.State.IsAlive() && !rec.Frozen {
		r.prices.remove(rec.LimitPrice, rec.LocalID)
	}
	rec.Frozen = true
	err := &domain.ConsistencyError{LocalID: rec.LocalID, VenueID: rec.VenueID, Reason: reason}
	slog.Error("order record frozen", slog.String("local_id", rec.LocalID),
		slog.String("venue_id", rec.VenueID), slog.String("reason", reason))
	return err
}

func snapshotRecord(rec *domain.OrderRecord) domain.OrderRecord {
	cp := *rec
	cp.TradeIDs = append([]string(nil), rec.TradeIDs...)
	return cp
}

// Now is a convenience for callers that stamp registry mutations with wall
// time outside of replay.
func Now() quant.TimeStamp {
	return quant.TimeStamp(time.Now().UnixMicro())
}
