package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"scalp_go/internal/domain"
	"scalp_go/internal/engine"
	"scalp_go/internal/event"
	"scalp_go/internal/gateway"
	"scalp_go/internal/infra"
	"scalp_go/internal/pairing"
	"scalp_go/internal/storage"
	"scalp_go/internal/strategy"
	"scalp_go/pkg/quant"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to yaml config")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(infra.NewLogger(cfg))

	journal, err := storage.NewJournal(cfg.Storage.DBPath, cfg.Trading.RunID)
	if err != nil {
		slog.Error("journal open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()

	session, err := sessionFromConfig(cfg)
	if err != nil {
		slog.Error("session config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	closeOffset := domain.Close
	if cfg.Strategy.CloseToday {
		closeOffset = domain.CloseToday
	}
	pairEngine := pairing.New(pairing.Config{
		Spread:      cfg.CloseSpread4(),
		CloseOffset: closeOffset,
	})
	strat := strategy.NewScalping(cfg.Trading.Symbol, quant.Lots(cfg.Strategy.VolumePerOrder), session)

	loop := engine.New(engine.Config{
		Symbol:             cfg.Trading.Symbol,
		MaxPosition:        quant.Lots(cfg.Strategy.MaxPosition),
		VolumePerOrder:     quant.Lots(cfg.Strategy.VolumePerOrder),
		VolumePerPrice:     quant.Lots(cfg.Strategy.VolumePerPrice),
		InboxSize:          cfg.Loop.InboxSize,
		StallTimeout:       time.Duration(cfg.Loop.StallTimeoutSec) * time.Second,
		FlattenBeforeClose: cfg.Strategy.FlattenBeforeClose,
		Session:            session,
	}, journal, nil, pairEngine, strat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Recover(ctx); err != nil {
		slog.Error("recovery failed", slog.Any("error", err))
		os.Exit(1)
	}

	var nextSeq uint64
	go tickLoop(ctx, loop.Inbox(), &nextSeq)

	if strings.ToUpper(cfg.Trading.Mode) == "REAL" {
		gw := gateway.NewWS(cfg.Venue.WSURL, loop.Inbox(), &nextSeq)
		loop.AttachGateway(gw)
		defer gw.Close()
		gw.Start(ctx)
		slog.Info("live reconciliation running", slog.String("symbol", cfg.Trading.Symbol))
	} else {
		sim := gateway.NewSim(loop.Inbox(), &nextSeq)
		loop.AttachGateway(sim)
		go quoteWalk(ctx, sim, cfg.Trading.Symbol)
		slog.Info("paper reconciliation running", slog.String("symbol", cfg.Trading.Symbol))
	}

	loop.ResubmitPending(ctx)
	loop.Run(ctx)
}

func tickLoop(ctx context.Context, inbox chan<- event.Event, nextSeq *uint64) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			inbox <- &event.TimerTickEvent{BaseEvent: event.BaseEvent{
				Seq: quant.NextSeq(nextSeq),
				Ts:  quant.TimeStamp(t.UnixMicro()),
			}}
		}
	}
}

// quoteWalk drives the simulated venue with a one-tick random walk so paper
// mode exercises the whole submit/fill/pair cycle without market data.
func quoteWalk(ctx context.Context, sim *gateway.SimGateway, symbol string) {
	bid := quant.ToPrice4(2500.0)
	tick := quant.Price4(quant.PriceScale) // one point
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rand.Intn(2) == 0 {
				bid += tick
			} else if bid > tick {
				bid -= tick
			}
			sim.PushQuote(symbol, bid, bid+tick)
		}
	}
}

func sessionFromConfig(cfg *infra.Config) (*strategy.Session, error) {
	var pairs [][2]string
	for _, s := range cfg.Strategy.Sessions {
		pairs = append(pairs, [2]string{s.Open, s.Close})
	}
	return strategy.ParseSession(pairs)
}
