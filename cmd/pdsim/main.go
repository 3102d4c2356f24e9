// Command pdsim runs one evolutionary Prisoner's Dilemma simulation, either as
// fast as possible for a fixed number of ticks or in real time behind the
// observation API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/dilemma/internal/api"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/engine"
	"github.com/talgya/dilemma/internal/entropy"
	"github.com/talgya/dilemma/internal/persistence"
	"github.com/talgya/dilemma/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (embedded defaults when empty)")
	ticks := flag.Int("ticks", 0, "ticks to run (overrides run.ticks)")
	seed := flag.Int64("seed", 0, "random seed (overrides run.seed; 0 = random)")
	serve := flag.Bool("serve", false, "run in real time with the HTTP API until interrupted")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	// Flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ticks":
			cfg.Run.Ticks = *ticks
		case "seed":
			cfg.Run.Seed = *seed
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Run.SlogLevel(),
	}))
	slog.SetDefault(logger)

	runSeed := entropy.ResolveSeed(cfg.Run.Seed)
	runID := uuid.NewString()

	slog.Info("Prisoner's Dilemma simulation",
		"run", runID,
		"seed", runSeed,
		"population", cfg.World.Population,
		"groups", cfg.World.NumGroups,
		"rounds", cfg.World.NumRounds,
		"partners", cfg.World.PartnersPerRound,
		"turnover", fmt.Sprintf("%.3f", cfg.World.TurnoverRate),
	)

	// ── Storage ──────────────────────────────────────────────────────
	db, err := persistence.OpenStorage(cfg.Storage)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		slog.Info("database opened", "driver", cfg.Storage.Driver)
	} else {
		slog.Warn("storage disabled; statistics kept in memory only")
	}

	// ── World ────────────────────────────────────────────────────────
	w, err := engine.NewWorld(cfg.World, runSeed)
	if err != nil {
		slog.Error("failed to create world", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec stats.Recorder
	if db != nil {
		if err := db.CreateRun(ctx, runID, "pdsim", runSeed, cfg.World); err != nil {
			slog.Error("failed to record run", "error", err)
			os.Exit(1)
		}
		rec = db
	}
	col := stats.NewCollector(runID, rec)
	col.Retain = 1

	step := func() {
		st := w.Tick()
		snap, err := col.Collect(ctx, st.Tick, w.Agents())
		if err != nil {
			slog.Error("stats collection failed", "tick", st.Tick, "error", err)
		}
		if cfg.Run.ReportEvery > 0 && st.Tick%uint64(cfg.Run.ReportEvery) == 0 {
			report(st, snap)
		}
	}

	status := persistence.StatusFinished
	if *serve {
		runServe(ctx, cfg, w, db, runID, step)
	} else {
		if !runFast(ctx, cfg.Run.Ticks, step) {
			status = persistence.StatusFailed
		}
	}

	// ── Shutdown ─────────────────────────────────────────────────────
	if db != nil {
		bg := context.Background()
		if err := db.SaveSurvivors(bg, runID, w.Agents()); err != nil {
			slog.Error("save survivors failed", "error", err)
		}
		if err := db.FinishRun(bg, runID, w.CurrentTick(), status); err != nil {
			slog.Error("finish run failed", "error", err)
		}
	}

	printStrategies(w)
}

// runFast advances ticks as quickly as possible. Returns false if interrupted.
func runFast(ctx context.Context, ticks int, step func()) bool {
	start := time.Now()
	for i := 0; i < ticks; i++ {
		if ctx.Err() != nil {
			slog.Warn("interrupted", "completed", i, "requested", ticks)
			return false
		}
		step()
	}
	slog.Info("run complete", "ticks", ticks, "elapsed", time.Since(start).Round(time.Millisecond))
	return true
}

// runServe drives the world with the real-time engine and serves the API until
// ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, w *engine.World, db *persistence.DB, runID string, step func()) {
	eng := engine.NewEngine()
	eng.Interval = cfg.API.TickInterval()
	eng.OnTick = func(uint64) { step() }

	if cfg.API.AdminKey == "" {
		slog.Warn("PDSIM_ADMIN_KEY not set; admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		World:    w,
		Eng:      eng,
		DB:       db,
		RunID:    runID,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
	}
	srv := apiServer.Start()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
}

func report(st engine.TickStats, snap stats.Snapshot) {
	attrs := []any{
		"tick", st.Tick,
		"cooperation", fmt.Sprintf("%.3f", st.CooperationRate()),
		"mean_wealth", fmt.Sprintf("%.3f", snap.Summary.MeanWealth),
		"mean_memory", fmt.Sprintf("%.3f", snap.Summary.MeanMemory),
		"max_memory", snap.Summary.MaxMemory,
		"strategies", snap.Summary.DistinctStrategies,
		"mutations", st.PointMuts+st.SplitMuts+st.DupliMuts,
	}
	if top, ok := stats.Dominant(snap.Strategies); ok {
		attrs = append(attrs, "dominant", top.Strategy, "dominant_freq", top.Freq)
	}
	slog.Info("report", attrs...)
}

func printStrategies(w *engine.World) {
	rows := stats.StrategyFrequency(w.Agents())
	fmt.Printf("\nStrategy frequency after %d ticks (seed %d):\n", w.CurrentTick(), w.Seed())
	for _, r := range rows {
		fmt.Printf("  %-32s %d\n", r.Strategy, r.Freq)
	}
}
