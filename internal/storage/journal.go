package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"scalp_go/internal/domain"
	"scalp_go/internal/event"
)

// Journal is the durable write-ahead log of the reconciliation core. It keeps
// three tables: the raw inbound event stream, the last known state of every
// order, and the set of applied trades. All rows carry the run id so one file
// can hold several sessions without runtime schema tricks.
type Journal struct {
	db    *sql.DB
	runID string
}

// NewJournal opens (or creates) a journal with WAL mode enabled.
func NewJournal(dbPath, runID string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			run_id TEXT NOT NULL,
			local_id TEXT NOT NULL,
			payload BLOB NOT NULL,
			updated_ts INTEGER NOT NULL,
			PRIMARY KEY (run_id, local_id)
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT NOT NULL,
			trade_id TEXT NOT NULL,
			venue_id TEXT NOT NULL,
			price INTEGER NOT NULL,
			volume INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			PRIMARY KEY (run_id, trade_id)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Journal{db: db, runID: runID}, nil
}

// SaveEvent appends one inbound event. Called before the event is applied.
func (j *Journal) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO events (run_id, seq, type, ts, payload) VALUES (?, ?, ?, ?, ?)",
		j.runID, ev.GetSeq(), ev.GetType(), ev.GetTs(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// LastSeq returns the highest event sequence journaled for this run, 0 when
// the run is fresh.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	err := j.db.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM events WHERE run_id = ?", j.runID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// LoadEvents loads journaled events from fromSeq (inclusive) in order.
func (j *Journal) LoadEvents(ctx context.Context, fromSeq uint64) ([]event.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT type, payload FROM events WHERE run_id = ? AND seq >= ? ORDER BY seq ASC",
		j.runID, fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var typ event.Type
		var payload []byte
		if err := rows.Scan(&typ, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := decodeEvent(typ, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func decodeEvent(typ event.Type, payload []byte) (event.Event, error) {
	switch typ {
	case event.EvQuoteChanged:
		var ev event.QuoteChangedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quote event: %w", err)
		}
		return &ev, nil
	case event.EvOrderChanged:
		var ev event.OrderChangedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
		}
		return &ev, nil
	case event.EvTradeArrived:
		var ev event.TradeArrivedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade event: %w", err)
		}
		return &ev, nil
	case event.EvTimerTick:
		var ev event.TimerTickEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tick event: %w", err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown journaled event type %d", typ)
	}
}

// UpsertOrder persists the latest view of one order record.
func (j *Journal) UpsertOrder(ctx context.Context, rec domain.OrderRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO orders (run_id, local_id, payload, updated_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, local_id) DO UPDATE SET payload=excluded.payload, updated_ts=excluded.updated_ts`,
		j.runID, rec.LocalID, payload, rec.LastUpdateTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

// LoadOrders returns the last known state of every order in this run.
func (j *Journal) LoadOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT payload FROM orders WHERE run_id = ? ORDER BY updated_ts ASC", j.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var records []domain.OrderRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		var rec domain.OrderRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InsertTrade records an applied trade id. Re-inserting the same id is a
// no-op, mirroring the in-memory dedup set.
func (j *Journal) InsertTrade(ctx context.Context, tr domain.TradeRecord) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO trades (run_id, trade_id, venue_id, price, volume, ts) VALUES (?, ?, ?, ?, ?, ?)",
		j.runID, tr.TradeID, tr.VenueID, tr.Price, tr.Volume, tr.Ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// HasTrade reports whether a trade id was journaled in this run.
func (j *Journal) HasTrade(ctx context.Context, tradeID string) (bool, error) {
	var one int
	err := j.db.QueryRowContext(ctx,
		"SELECT 1 FROM trades WHERE run_id = ? AND trade_id = ?", j.runID, tradeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query trade: %w", err)
	}
	return true, nil
}

// LoadTrades returns all applied trades for this run in journal order.
func (j *Journal) LoadTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT trade_id, venue_id, price, volume, ts FROM trades WHERE run_id = ? ORDER BY rowid ASC",
		j.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var tr domain.TradeRecord
		if err := rows.Scan(&tr.TradeID, &tr.VenueID, &tr.Price, &tr.Volume, &tr.Ts); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
