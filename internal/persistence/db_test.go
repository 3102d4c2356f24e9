package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/entropy"
	"github.com/talgya/dilemma/internal/stats"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg := config.Default().World

	if err := db.CreateRun(ctx, "run-a", "groups=1", 42, cfg); err != nil {
		t.Fatal(err)
	}
	r, err := db.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusRunning || r.Seed != 42 || r.Label != "groups=1" {
		t.Fatalf("unexpected run %+v", r)
	}
	got, err := r.Config()
	if err != nil || got != cfg {
		t.Fatalf("config round trip: %+v %v", got, err)
	}

	if err := db.FinishRun(ctx, "run-a", 250, StatusFinished); err != nil {
		t.Fatal(err)
	}
	r, _ = db.GetRun(ctx, "run-a")
	if r.Status != StatusFinished || r.Ticks != 250 || r.FinishedAt == "" {
		t.Fatalf("run not finished: %+v", r)
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := db.FinishRun(ctx, "missing", 1, StatusFailed); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v %v", runs, err)
	}
}

func population(t *testing.T, n int) []*agents.Agent {
	t.Helper()
	return agents.NewSpawner(entropy.New(5), 2).SpawnPopulation(n, 0)
}

func TestRecordSnapshotAndHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pop := population(t, 20)

	for tick := uint64(1); tick <= 5; tick++ {
		for _, a := range pop {
			a.Age = tick
		}
		if err := db.RecordSnapshot(ctx, stats.Take("r1", tick, pop)); err != nil {
			t.Fatalf("record tick %d: %v", tick, err)
		}
	}
	// Re-recording a tick replaces it.
	if err := db.RecordSnapshot(ctx, stats.Take("r1", 5, pop)); err != nil {
		t.Fatal(err)
	}

	hist, err := db.LoadStatsHistory(ctx, "r1", 2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 || hist[0].Tick != 2 || hist[2].Tick != 4 {
		t.Fatalf("history %+v", hist)
	}
	if hist[0].Population != 20 {
		t.Fatalf("population %d", hist[0].Population)
	}

	all, _ := db.LoadStatsHistory(ctx, "r1", 0, 0, 2)
	if len(all) != 2 {
		t.Fatalf("limit ignored: %d rows", len(all))
	}

	want := stats.StrategyFrequency(pop)
	got, err := db.LoadStrategyFrequency(ctx, "r1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("strategy rows %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: %+v, want %+v", i, got[i], want[i])
		}
	}

	ages, err := db.LoadAgeFrequency(ctx, "r1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ages) != 1 || ages[0].Age != 3 || ages[0].Freq != 20 {
		t.Fatalf("ages %+v", ages)
	}
}

func TestSaveSurvivorsReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pop := population(t, 6)
	for i, a := range pop {
		a.Wealth = float64(i)
	}

	if err := db.SaveSurvivors(ctx, "r1", pop); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSurvivors(ctx, "r1", pop[:3]); err != nil {
		t.Fatal(err)
	}

	rows, err := db.LoadSurvivors(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(rows))
	}
	if rows[0].Wealth != 2 || rows[0].Strategy != pop[2].Strategy.String() {
		t.Fatalf("richest first: %+v", rows[0])
	}
}
