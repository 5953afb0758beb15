package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"scalp_go/internal/engine"
	"scalp_go/internal/gateway"
	"scalp_go/internal/pairing"
	"scalp_go/internal/storage"
	"scalp_go/pkg/quant"
)

// replay rebuilds registry state from a journal and prints the resulting
// book. The orders and trades tables restore the records (submit intents are
// not part of the inbound event stream), then the journaled events run
// through the same dispatch path as live processing; redeliveries must be
// absorbed without changing the restored state. Useful for post-mortems and
// for checking that recovery is deterministic.
func main() {
	dbPath := flag.String("db", "journal.db", "journal database path")
	runID := flag.String("run", "default", "run id to replay")
	spread := flag.Float64("spread", 1.0, "close spread used during the run")
	flag.Parse()

	journal, err := storage.NewJournal(*dbPath, *runID)
	if err != nil {
		slog.Error("journal open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	ctx := context.Background()
	events, err := journal.LoadEvents(ctx, 1)
	if err != nil {
		slog.Error("event load failed", slog.Any("error", err))
		os.Exit(1)
	}

	pairEngine := pairing.New(pairing.Config{Spread: quant.ToPrice4(*spread)})
	loop := engine.New(engine.Config{
		MaxPosition:    1, // replay never submits; admission values are moot
		VolumePerOrder: 1,
		VolumePerPrice: 1,
	}, journal, &gateway.Null{}, pairEngine, nil)

	if err := loop.Recover(ctx); err != nil {
		slog.Error("recovery failed", slog.Any("error", err))
		os.Exit(1)
	}

	for _, ev := range events {
		loop.ReplayEvent(ev)
	}

	records := loop.Snapshot()
	fmt.Printf("replayed %d events, %d orders\n", len(events), len(records))
	for _, rec := range records {
		fmt.Printf("%-12s %-4s %-10s price=%-10s left=%d/%d state=%s opponent=%s\n",
			rec.VenueID, rec.Direction, rec.Offset, rec.LimitPrice,
			rec.VolumeLeft, rec.VolumeOriginal, rec.State, rec.OpponentLocalID)
	}
}
