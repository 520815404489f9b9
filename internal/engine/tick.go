package engine

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/talgya/realm-market/internal/economy"
)

// AdvanceDay moves every price in every region by one simulated day:
// a Gaussian move scaled by the commodity's volatility, then the region's
// standing modifier (reapplied every day), then the price floor.
//
// It returns the new day. The only error is a *PersistError; the in-memory
// state has advanced regardless.
func (m *Market) AdvanceDay(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	for _, r := range economy.Regions() {
		for _, c := range economy.Commodities() {
			info := c.Info()
			pp := &m.prices[r][c]

			delta := m.rng.NormFloat64() * info.Volatility
			candidate := pp.CurrentPrice + delta*pp.CurrentPrice
			if mod, ok := r.Modifier(c); ok {
				candidate *= 1 + mod
			}
			pp.record(math.Max(candidate, c.Floor()))
		}
	}
	m.day++
	day := m.day
	err := m.persistLocked(ctx)
	m.mu.Unlock()

	if err != nil {
		slog.Error("day advanced but state not saved", "day", day, "error", err)
	} else {
		slog.Info("day advanced", "day", day, "date", SimDate(day))
	}
	m.publish(Update{Kind: UpdateDay, Day: day, At: m.now()})
	return day, err
}

// Clock advances the market one day per Interval until its context ends.
type Clock struct {
	Market   *Market
	Interval time.Duration

	paused atomic.Bool
	ticks  atomic.Uint64
}

// NewClock creates a clock for m. A non-positive interval defaults to one minute.
func NewClock(m *Market, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Clock{Market: m, Interval: interval}
}

// Run blocks until ctx is cancelled. Save failures are logged and do not
// stop the clock.
func (c *Clock) Run(ctx context.Context) {
	slog.Info("market clock started", "interval", c.Interval, "day", c.Market.Day())

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("market clock stopped", "ticks", c.ticks.Load())
			return
		case <-ticker.C:
			if c.paused.Load() {
				continue
			}
			c.ticks.Add(1)
			if _, err := c.Market.AdvanceDay(ctx); err != nil {
				slog.Error("scheduled advance failed", "error", err)
			}
		}
	}
}

// Pause stops advancing days until Resume is called.
func (c *Clock) Pause() { c.paused.Store(true) }

// Resume undoes Pause.
func (c *Clock) Resume() { c.paused.Store(false) }

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool { return c.paused.Load() }

// Ticks returns how many days the clock has advanced.
func (c *Clock) Ticks() uint64 { return c.ticks.Load() }
