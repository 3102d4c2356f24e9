package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsMatchReferenceModel(t *testing.T) {
	cfg := Default()
	w := cfg.World

	if w.Population != 100 || w.NumGroups != 1 || w.NumRounds != 100 || w.PartnersPerRound != 5 {
		t.Fatalf("unexpected integer defaults: %+v", w)
	}
	if w.ProbErr != 0.01 || w.ProbPoint != 0.001 || w.ProbSplit != 0.002 || w.ProbDupli != 0.002 {
		t.Fatalf("unexpected probability defaults: %+v", w)
	}
	if w.TurnoverRate != 0.1 || w.DistinctPartners {
		t.Fatalf("unexpected turnover defaults: %+v", w)
	}
	if len(cfg.Batch.NumGroups) != 4 || cfg.Batch.Iterations != 5 || cfg.Batch.MaxSteps != 1000 {
		t.Fatalf("unexpected batch defaults: %+v", cfg.Batch)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte("world:\n  population: 40\n  num_groups: 3\nbatch:\n  num_groups: [2]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.World.Population != 40 || cfg.World.NumGroups != 3 {
		t.Fatalf("file values not applied: %+v", cfg.World)
	}
	if cfg.World.NumRounds != 100 {
		t.Fatalf("unset fields must keep defaults, got num_rounds %d", cfg.World.NumRounds)
	}
	if len(cfg.Batch.NumGroups) != 1 || cfg.Batch.NumGroups[0] != 2 {
		t.Fatalf("batch groups not replaced: %v", cfg.Batch.NumGroups)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.World.ProbErr = 0.05
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.World.ProbErr != 0.05 {
		t.Fatalf("got prob_err %g", loaded.World.ProbErr)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"tiny population":   func(c *Config) { c.World.Population = 1 },
		"zero groups":       func(c *Config) { c.World.NumGroups = 0 },
		"zero rounds":       func(c *Config) { c.World.NumRounds = 0 },
		"negative partners": func(c *Config) { c.World.PartnersPerRound = -1 },
		"prob above one":    func(c *Config) { c.World.ProbErr = 1.5 },
		"negative turnover": func(c *Config) { c.World.TurnoverRate = -0.1 },
		"unknown driver":    func(c *Config) { c.Storage.Driver = "mysql" },
		"bad batch groups":  func(c *Config) { c.Batch.NumGroups = []int{0} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PDSIM_SEED", "777")
	t.Setenv("PDSIM_TICKS", "12")
	t.Setenv("PDSIM_DB_DRIVER", "none")
	t.Setenv("PDSIM_ADMIN_KEY", "secret")
	t.Setenv("PDSIM_API_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Run.Seed != 777 || cfg.Run.Ticks != 12 {
		t.Fatalf("run overrides not applied: %+v", cfg.Run)
	}
	if cfg.Storage.Driver != "none" || cfg.API.AdminKey != "secret" {
		t.Fatalf("storage/api overrides not applied: %+v %+v", cfg.Storage, cfg.API)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("bad integer must keep default, got %d", cfg.API.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PDSIM_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PDSIM_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("PDSIM_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("got %q", got)
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (RunConfig{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("%q: got %v want %v", in, got, want)
		}
	}
}
