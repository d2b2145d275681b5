// Package engine provides the day-based simulation loop.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// MaxInterval caps the real-time pacing delay between ticks.
const MaxInterval = 10 * time.Second

// Engine drives the simulation forward one day per tick. Tick boundaries are the
// only points where a run can be interrupted.
type Engine struct {
	Day uint64 // Ticks completed by this engine (monotonic)

	// OnDay is invoked once per tick.
	OnDay func(ctx context.Context, day uint64)

	interval atomic.Int64 // Real-time delay per tick; 0 = as fast as possible
	running  atomic.Bool
	stop     atomic.Bool
}

// NewEngine creates an engine with no pacing delay.
func NewEngine() *Engine {
	return &Engine{}
}

// SetInterval changes the pacing delay. It takes effect on the next tick.
func (e *Engine) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d > MaxInterval {
		d = MaxInterval
	}
	e.interval.Store(int64(d))
}

// Interval returns the current pacing delay.
func (e *Engine) Interval() time.Duration {
	return time.Duration(e.interval.Load())
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stop halts the loop at the next tick boundary.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Run performs exactly days ticks unless ctx is cancelled or Stop is called first.
// It returns ctx.Err() when cancelled.
func (e *Engine) Run(ctx context.Context, days int) error {
	e.running.Store(true)
	e.stop.Store(false)
	defer e.running.Store(false)

	slog.Info("simulation engine started", "day", e.Day, "days", days, "interval", e.Interval())

	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine interrupted", "day", e.Day)
			return err
		}
		if e.stop.Load() {
			break
		}

		start := time.Now()
		e.step(ctx)

		// Sleep for the remainder of the tick interval.
		if target := e.Interval(); target > 0 && i < days-1 {
			if wait := target - time.Since(start); wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					slog.Info("simulation engine interrupted", "day", e.Day)
					return err
				}
			}
		}
	}

	slog.Info("simulation engine stopped", "day", e.Day)
	return nil
}

// step advances the simulation by one tick.
func (e *Engine) step(ctx context.Context) {
	e.Day++
	if e.OnDay != nil {
		e.OnDay(ctx, e.Day)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
