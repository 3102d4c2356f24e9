// Package batch runs a world over a grid of parameter combinations, several
// iterations each, and reports the final strategy table of every run. Runs
// execute one after another.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/engine"
	"github.com/talgya/dilemma/internal/entropy"
	"github.com/talgya/dilemma/internal/persistence"
	"github.com/talgya/dilemma/internal/stats"
)

// Store receives run metadata and per-tick statistics.
type Store interface {
	stats.Recorder
	CreateRun(ctx context.Context, id, label string, seed int64, cfg config.WorldConfig) error
	FinishRun(ctx context.Context, id string, ticks uint64, status string) error
	SaveSurvivors(ctx context.Context, runID string, pop []*agents.Agent) error
}

// Runner sweeps NumGroups x Populations, Iterations times each.
type Runner struct {
	Base        config.WorldConfig
	NumGroups   []int // empty = Base.NumGroups only
	Populations []int // empty = Base.Population only
	Iterations  int
	MaxSteps    int
	Seed        int64 // run i uses Seed+i; 0 = draw a base seed
	Store       Store // nil = results are only returned

	// OnResult is called after each run completes.
	OnResult func(Result)
}

// Result summarises one finished run.
type Result struct {
	RunID      string                `json:"run_id"`
	NumGroups  int                   `json:"num_groups"`
	Population int                   `json:"population"`
	Iteration  int                   `json:"iteration"`
	Seed       int64                 `json:"seed"`
	Ticks      uint64                `json:"ticks"`
	Final      []stats.StrategyCount `json:"final"`
	Summary    stats.Summary         `json:"summary"`
}

// Dominant returns the most frequent final strategy.
func (r Result) Dominant() (stats.StrategyCount, bool) {
	return stats.Dominant(r.Final)
}

type params struct {
	groups, population, iteration int
}

func (r *Runner) grid() []params {
	groups := r.NumGroups
	if len(groups) == 0 {
		groups = []int{r.Base.NumGroups}
	}
	pops := r.Populations
	if len(pops) == 0 {
		pops = []int{r.Base.Population}
	}
	iters := r.Iterations
	if iters < 1 {
		iters = 1
	}

	var grid []params
	for _, g := range groups {
		for _, p := range pops {
			for i := 0; i < iters; i++ {
				grid = append(grid, params{groups: g, population: p, iteration: i})
			}
		}
	}
	return grid
}

// Run executes every combination. It stops between ticks when ctx is
// cancelled and returns the results completed so far with ctx's error.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	base := entropy.ResolveSeed(r.Seed)
	grid := r.grid()
	slog.Info("batch starting", "runs", len(grid), "max_steps", r.MaxSteps, "seed", base)

	results := make([]Result, 0, len(grid))
	for i, p := range grid {
		cfg := r.Base
		cfg.NumGroups = p.groups
		cfg.Population = p.population

		res, err := r.runOne(ctx, cfg, p, base+int64(i))
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if r.OnResult != nil {
			r.OnResult(res)
		}
	}

	slog.Info("batch complete", "runs", len(results))
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, cfg config.WorldConfig, p params, seed int64) (Result, error) {
	w, err := engine.NewWorld(cfg, seed)
	if err != nil {
		return Result{}, fmt.Errorf("run groups=%d population=%d: %w", p.groups, p.population, err)
	}

	id := uuid.NewString()
	label := fmt.Sprintf("groups=%d population=%d iteration=%d", p.groups, p.population, p.iteration)

	var rec stats.Recorder
	if r.Store != nil {
		if err := r.Store.CreateRun(ctx, id, label, w.Seed(), cfg); err != nil {
			return Result{}, err
		}
		rec = r.Store
	}
	col := stats.NewCollector(id, rec)
	col.Retain = 1

	status := persistence.StatusFinished
	var runErr error
	for step := 0; step < r.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			status, runErr = persistence.StatusFailed, err
			break
		}
		w.Tick()
		if _, err := col.Collect(ctx, w.CurrentTick(), w.Agents()); err != nil {
			status, runErr = persistence.StatusFailed, err
			break
		}
	}

	if r.Store != nil {
		// The run's own context may be cancelled; bookkeeping still goes out.
		bg := context.WithoutCancel(ctx)
		if err := r.Store.SaveSurvivors(bg, id, w.Agents()); err != nil {
			slog.Error("save survivors failed", "run", id, "error", err)
		}
		if err := r.Store.FinishRun(bg, id, w.CurrentTick(), status); err != nil {
			slog.Error("finish run failed", "run", id, "error", err)
		}
	}
	if runErr != nil {
		return Result{}, fmt.Errorf("run %s: %w", id, runErr)
	}

	res := Result{
		RunID:      id,
		NumGroups:  p.groups,
		Population: p.population,
		Iteration:  p.iteration,
		Seed:       w.Seed(),
		Ticks:      w.CurrentTick(),
		Final:      stats.StrategyFrequency(w.Agents()),
		Summary:    stats.Summarize(w.Agents()),
	}
	slog.Debug("batch run complete",
		"run", id,
		"groups", p.groups,
		"population", p.population,
		"iteration", p.iteration,
		"distinct", res.Summary.DistinctStrategies,
	)
	return res, nil
}
