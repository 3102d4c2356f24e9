// Command pdbatch sweeps group counts and population sizes, running several
// iterations of each, and prints the outcome of every run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/talgya/dilemma/internal/batch"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (embedded defaults when empty)")
	seed := flag.Int64("seed", 0, "base seed; run i uses seed+i (overrides run.seed; 0 = random)")
	steps := flag.Int("steps", 0, "ticks per run (overrides batch.max_steps)")
	iterations := flag.Int("iterations", 0, "iterations per combination (overrides batch.iterations)")
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

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Run.Seed = *seed
		case "steps":
			cfg.Batch.MaxSteps = *steps
		case "iterations":
			cfg.Batch.Iterations = *iterations
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

	db, err := persistence.OpenStorage(cfg.Storage)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	runner := &batch.Runner{
		Base:        cfg.World,
		NumGroups:   cfg.Batch.NumGroups,
		Populations: cfg.Batch.Populations,
		Iterations:  cfg.Batch.Iterations,
		MaxSteps:    cfg.Batch.MaxSteps,
		Seed:        cfg.Run.Seed,
		OnResult:    printResult,
	}
	if db != nil {
		defer db.Close()
		runner.Store = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%-36s %6s %6s %4s %20s %9s  %s\n",
		"run", "groups", "pop", "iter", "seed", "distinct", "dominant")

	results, err := runner.Run(ctx)
	if err != nil {
		slog.Error("batch stopped", "completed", len(results), "error", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d runs complete.\n", len(results))
}

func printResult(r batch.Result) {
	dominant := "-"
	if top, ok := r.Dominant(); ok {
		dominant = fmt.Sprintf("%s (%d)", top.Strategy, top.Freq)
	}
	fmt.Printf("%-36s %6d %6d %4d %20d %9d  %s\n",
		r.RunID, r.NumGroups, r.Population, r.Iteration, r.Seed,
		r.Summary.DistinctStrategies, dominant)
}
