package stats

import (
	"context"
	"fmt"

	"github.com/talgya/dilemma/internal/agents"
)

// Snapshot is everything collected for one tick.
type Snapshot struct {
	RunID      string          `json:"run_id"`
	Tick       uint64          `json:"tick"`
	Summary    Summary         `json:"summary"`
	Strategies []StrategyCount `json:"strategies"`
	Ages       []AgeCount      `json:"ages"`
}

// Take builds a Snapshot of pop at tick.
func Take(runID string, tick uint64, pop []*agents.Agent) Snapshot {
	return Snapshot{
		RunID:      runID,
		Tick:       tick,
		Summary:    Summarize(pop),
		Strategies: StrategyFrequency(pop),
		Ages:       AgeFrequency(pop),
	}
}

// Recorder persists snapshots.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}

// Collector gathers one snapshot per tick, keeps the most recent ones in
// memory, and forwards each to an optional Recorder.
type Collector struct {
	RunID    string
	Recorder Recorder // nil = in-memory only
	Retain   int      // snapshots kept in memory; 0 = all

	series []Snapshot
}

// NewCollector creates a collector for runID.
func NewCollector(runID string, rec Recorder) *Collector {
	return &Collector{RunID: runID, Recorder: rec}
}

// Collect snapshots pop at tick. The snapshot is kept even if recording fails.
func (c *Collector) Collect(ctx context.Context, tick uint64, pop []*agents.Agent) (Snapshot, error) {
	snap := Take(c.RunID, tick, pop)

	c.series = append(c.series, snap)
	if c.Retain > 0 && len(c.series) > c.Retain {
		c.series = c.series[len(c.series)-c.Retain:]
	}

	if c.Recorder != nil {
		if err := c.Recorder.RecordSnapshot(ctx, snap); err != nil {
			return snap, fmt.Errorf("record tick %d: %w", tick, err)
		}
	}
	return snap, nil
}

// Series returns the retained snapshots, oldest first.
func (c *Collector) Series() []Snapshot {
	return c.series
}

// Latest returns the most recent snapshot.
func (c *Collector) Latest() (Snapshot, bool) {
	if len(c.series) == 0 {
		return Snapshot{}, false
	}
	return c.series[len(c.series)-1], true
}
