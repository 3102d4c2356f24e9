// Package persistence stores run metadata, per-tick statistics, and final
// population reports. Agent state is written for inspection only and is never
// loaded back into a world.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/config"
	"github.com/talgya/dilemma/internal/stats"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// DB wraps a sqlx connection to SQLite or Postgres.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// Open connects to the store and creates the schema if needed. driver is
// "sqlite" (dsn is a file path) or "postgres" (dsn is a lib/pq connection
// string).
func Open(driver, dsn string) (*DB, error) {
	var conn *sqlx.DB
	var err error

	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		conn, err = sqlx.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
		if err == nil {
			conn.SetMaxOpenConns(1)
		}
	case "postgres":
		conn, err = sqlx.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("open db: unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// OpenStorage opens the store described by cfg. It returns a nil DB and no
// error when storage is disabled.
func OpenStorage(cfg config.StorageConfig) (*DB, error) {
	if cfg.Driver == "" || cfg.Driver == "none" {
		return nil, nil
	}
	return Open(cfg.Driver, cfg.DSN)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name the store was opened with.
func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			seed BIGINT NOT NULL,
			config_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			ticks BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tick_stats (
			run_id TEXT NOT NULL,
			tick BIGINT NOT NULL,
			population INTEGER NOT NULL,
			mean_wealth DOUBLE PRECISION NOT NULL,
			min_wealth DOUBLE PRECISION NOT NULL,
			max_wealth DOUBLE PRECISION NOT NULL,
			mean_memory DOUBLE PRECISION NOT NULL,
			max_memory INTEGER NOT NULL,
			mean_age DOUBLE PRECISION NOT NULL,
			cooperation DOUBLE PRECISION NOT NULL,
			distinct_strategies INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_freq (
			run_id TEXT NOT NULL,
			tick BIGINT NOT NULL,
			strategy TEXT NOT NULL,
			freq INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, strategy)
		)`,
		`CREATE TABLE IF NOT EXISTS age_freq (
			run_id TEXT NOT NULL,
			tick BIGINT NOT NULL,
			age BIGINT NOT NULL,
			freq INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, age)
		)`,
		`CREATE TABLE IF NOT EXISTS survivors (
			run_id TEXT NOT NULL,
			agent_id BIGINT NOT NULL,
			grp INTEGER NOT NULL,
			memory_length INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			wealth DOUBLE PRECISION NOT NULL,
			age BIGINT NOT NULL,
			PRIMARY KEY (run_id, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, s := range stmts {
		if _, err := db.conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Run is one row of the runs table.
type Run struct {
	ID         string `db:"id" json:"id"`
	Label      string `db:"label" json:"label"`
	Seed       int64  `db:"seed" json:"seed"`
	ConfigJSON string `db:"config_json" json:"-"`
	StartedAt  string `db:"started_at" json:"started_at"`
	FinishedAt string `db:"finished_at" json:"finished_at,omitempty"`
	Ticks      uint64 `db:"ticks" json:"ticks"`
	Status     string `db:"status" json:"status"`
}

// Config decodes the world parameters the run was started with.
func (r Run) Config() (config.WorldConfig, error) {
	var cfg config.WorldConfig
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode run %s config: %w", r.ID, err)
	}
	return cfg, nil
}

// CreateRun records the start of a run.
func (db *DB) CreateRun(ctx context.Context, id, label string, seed int64, cfg config.WorldConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO runs (id, label, seed, config_json, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`),
		id, label, seed, string(cfgJSON), now(), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", id, err)
	}
	slog.Debug("run created", "run", id, "label", label, "seed", seed)
	return nil
}

// FinishRun marks a run as ended after ticks ticks.
func (db *DB) FinishRun(ctx context.Context, id string, ticks uint64, status string) error {
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`UPDATE runs SET finished_at = ?, ticks = ?, status = ? WHERE id = ?`),
		now(), ticks, status, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// GetRun loads a single run.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := db.conn.GetContext(ctx, &r, db.conn.Rebind(`SELECT * FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns the most recently started runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	runs := []Run{}
	err := db.conn.SelectContext(ctx, &runs, db.conn.Rebind(
		`SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	return runs, err
}

// RecordSnapshot writes one tick's statistics in a single transaction.
// Recording the same tick twice replaces the earlier rows.
func (db *DB) RecordSnapshot(ctx context.Context, snap stats.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"tick_stats", "strategy_freq", "age_freq"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE run_id = ? AND tick = ?", table)
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), snap.RunID, snap.Tick); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	s := snap.Summary
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO tick_stats
		(run_id, tick, population, mean_wealth, min_wealth, max_wealth,
		 mean_memory, max_memory, mean_age, cooperation, distinct_strategies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		snap.RunID, snap.Tick, s.Population, s.MeanWealth, s.MinWealth, s.MaxWealth,
		s.MeanMemory, s.MaxMemory, s.MeanAge, s.Cooperation, s.DistinctStrategies,
	)
	if err != nil {
		return fmt.Errorf("insert tick stats: %w", err)
	}

	insStrat := tx.Rebind("INSERT INTO strategy_freq (run_id, tick, strategy, freq) VALUES (?, ?, ?, ?)")
	for _, row := range snap.Strategies {
		if _, err := tx.ExecContext(ctx, insStrat, snap.RunID, snap.Tick, row.Strategy, row.Freq); err != nil {
			return fmt.Errorf("insert strategy %s: %w", row.Strategy, err)
		}
	}

	insAge := tx.Rebind("INSERT INTO age_freq (run_id, tick, age, freq) VALUES (?, ?, ?, ?)")
	for _, row := range snap.Ages {
		if _, err := tx.ExecContext(ctx, insAge, snap.RunID, snap.Tick, row.Age, row.Freq); err != nil {
			return fmt.Errorf("insert age %d: %w", row.Age, err)
		}
	}

	return tx.Commit()
}

// TickRow is one row of the tick_stats table.
type TickRow struct {
	Tick uint64 `db:"tick" json:"tick"`
	stats.Summary
}

// LoadStatsHistory returns tick summaries for a run in tick order, limited to
// [from, to]. to == 0 means no upper bound; limit <= 0 means 1000.
func (db *DB) LoadStatsHistory(ctx context.Context, runID string, from, to uint64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := `SELECT tick, population, mean_wealth, min_wealth, max_wealth, mean_memory,
		max_memory, mean_age, cooperation, distinct_strategies
		FROM tick_stats WHERE run_id = ? AND tick >= ?`
	args := []any{runID, from}
	if to > 0 {
		q += " AND tick <= ?"
		args = append(args, to)
	}
	q += " ORDER BY tick LIMIT ?"
	args = append(args, limit)

	rows := []TickRow{}
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load stats history: %w", err)
	}
	return rows, nil
}

// LoadStrategyFrequency returns the strategy table recorded at tick, or at the
// latest recorded tick when tick is 0.
func (db *DB) LoadStrategyFrequency(ctx context.Context, runID string, tick uint64) ([]stats.StrategyCount, error) {
	q, args := frequencyQuery("strategy_freq", "strategy", runID, tick)
	rows := []stats.StrategyCount{}
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load strategy frequency: %w", err)
	}
	return rows, nil
}

// LoadAgeFrequency is LoadStrategyFrequency for the age table.
func (db *DB) LoadAgeFrequency(ctx context.Context, runID string, tick uint64) ([]stats.AgeCount, error) {
	q, args := frequencyQuery("age_freq", "age", runID, tick)
	rows := []stats.AgeCount{}
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load age frequency: %w", err)
	}
	return rows, nil
}

func frequencyQuery(table, key, runID string, tick uint64) (string, []any) {
	if tick > 0 {
		return fmt.Sprintf("SELECT %s, freq FROM %s WHERE run_id = ? AND tick = ? ORDER BY %s", key, table, key),
			[]any{runID, tick}
	}
	return fmt.Sprintf(`SELECT %s, freq FROM %s
		WHERE run_id = ? AND tick = (SELECT MAX(tick) FROM %s WHERE run_id = ?)
		ORDER BY %s`, key, table, table, key),
		[]any{runID, runID}
}

// Survivor is one agent of a run's final population.
type Survivor struct {
	AgentID      uint64  `db:"agent_id" json:"agent_id"`
	Group        int     `db:"grp" json:"group"`
	MemoryLength int     `db:"memory_length" json:"memory_length"`
	Strategy     string  `db:"strategy" json:"strategy"`
	Wealth       float64 `db:"wealth" json:"wealth"`
	Age          uint64  `db:"age" json:"age"`
}

// SaveSurvivors replaces the stored final population of a run.
func (db *DB) SaveSurvivors(ctx context.Context, runID string, pop []*agents.Agent) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM survivors WHERE run_id = ?"), runID); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO survivors
		(run_id, agent_id, grp, memory_length, strategy, wealth, age)
		VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range pop {
		_, err := stmt.ExecContext(ctx,
			runID, uint64(a.ID), a.Group, a.MemoryLength, a.Strategy.String(), a.Wealth, a.Age,
		)
		if err != nil {
			return fmt.Errorf("insert survivor %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("survivors saved", "run", runID, "agents", len(pop))
	return nil
}

// LoadSurvivors returns a run's stored final population, richest first.
func (db *DB) LoadSurvivors(ctx context.Context, runID string) ([]Survivor, error) {
	rows := []Survivor{}
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(
		`SELECT agent_id, grp, memory_length, strategy, wealth, age
		FROM survivors WHERE run_id = ? ORDER BY wealth DESC, agent_id`), runID)
	return rows, err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

