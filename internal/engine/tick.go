package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Engine drives a world forward in real time and lets other goroutines read
// state between ticks. OnTick runs under the write lock; View runs under the
// read lock, so a reader never sees a half-finished tick.
type Engine struct {
	Interval time.Duration // base tick interval (default 1 second)
	MaxTicks uint64        // stop after this many ticks; 0 = unbounded

	// OnTick advances the simulation. Populated during setup. It runs with the
	// engine lock held and must not call back into the Engine.
	OnTick func(tick uint64)

	mu      sync.RWMutex
	tick    uint64
	speed   float64 // 1.0 = one tick per Interval, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// Run starts the loop. Blocks until ctx is done, Stop is called, or MaxTicks
// ticks have run. Stopping only ever happens between ticks.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.running = true
	start := e.tick
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", start, "speed", e.Speed())

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		slog.Info("simulation engine stopped", "tick", e.Tick())
	}()

	for {
		if e.MaxTicks > 0 && e.Tick() >= e.MaxTicks {
			return
		}

		speed := e.Speed()
		wait := 100 * time.Millisecond // paused: check again shortly
		if speed > 0 {
			began := time.Now()
			e.step()
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(began)
		}

		if wait <= 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			default:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop halts the loop after the current tick. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick++
	if e.OnTick != nil {
		e.OnTick(e.tick)
	}
}

// View runs fn with the read lock held.
func (e *Engine) View(fn func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn()
}

// Tick returns the number of ticks the engine has run.
func (e *Engine) Tick() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Negative values pause.
func (e *Engine) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}
