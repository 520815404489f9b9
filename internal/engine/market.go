// Package engine owns the regional market state: daily price movement,
// triggered events, queries and analytics. State is persisted whole
// through a Store after every mutation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/realm-market/internal/economy"
	"github.com/talgya/realm-market/internal/entropy"
	"github.com/talgya/realm-market/internal/snapshot"
)

// Rolling window sizes.
const (
	HistoryWindow      = 30 // price points kept per region/commodity
	EventHistoryWindow = 50 // triggered events kept globally
	RecentEventsLimit  = 20 // events returned by RecentEvents
)

// NoEvent is reported for regions where no event has been triggered.
const NoEvent = "None"

// PricePoint is the current price of one commodity in one region plus its
// recent history, oldest first. The last history entry equals CurrentPrice.
type PricePoint struct {
	CurrentPrice float64   `json:"current_price"`
	History      []float64 `json:"history"`
}

// record sets a new current price and appends it to the bounded history.
func (p *PricePoint) record(price float64) {
	p.CurrentPrice = price
	p.History = append(p.History, price)
	if n := len(p.History); n > HistoryWindow {
		copy(p.History, p.History[n-HistoryWindow:])
		p.History = p.History[:HistoryWindow]
	}
}

func (p PricePoint) clone() PricePoint {
	return PricePoint{
		CurrentPrice: p.CurrentPrice,
		History:      append([]float64(nil), p.History...),
	}
}

// EventRecord is one triggered event in the global history.
type EventRecord struct {
	ID          string                        `json:"id"`
	Timestamp   time.Time                     `json:"timestamp"`
	Region      economy.Region                `json:"region"`
	Description string                        `json:"description"`
	Effects     map[economy.Commodity]float64 `json:"effects"`
}

// PriceHistory is the history of one region/commodity pair.
type PriceHistory struct {
	Region    economy.Region    `json:"region"`
	Commodity economy.Commodity `json:"commodity"`
	History   []float64         `json:"history"`
	Unit      string            `json:"unit"`
}

// Store persists whole market snapshots. Load returns snapshot.ErrNotFound
// when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	Save(ctx context.Context, snap *snapshot.Snapshot) error
}

// Market is the market state holder. Mutations are serialized by a write
// lock held across persistence; queries share a read lock.
type Market struct {
	mu         sync.RWMutex
	prices     [economy.NumRegions][economy.NumCommodities]PricePoint
	lastEvents [economy.NumRegions]string // "" = none
	events     []EventRecord
	day        uint64
	lastSaved  time.Time

	store Store
	rng   entropy.Source
	now   func() time.Time
	newID func() string

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// Option configures a Market.
type Option func(*Market)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Market) { m.now = now }
}

// WithIDs overrides the event id generator.
func WithIDs(newID func() string) Option {
	return func(m *Market) { m.newID = newID }
}

// New creates a market seeded at base prices. store may be nil, in which
// case nothing is persisted.
func New(store Store, rng entropy.Source, opts ...Option) *Market {
	m := &Market{
		store: store,
		rng:   rng,
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.seed()
	return m
}

// Open restores the market from store, or seeds a fresh one when there is
// nothing to restore. Read failures never block startup: they are logged
// and the market starts fresh. Nothing is written until the first mutation.
func Open(ctx context.Context, store Store, rng entropy.Source, opts ...Option) *Market {
	m := New(store, rng, opts...)
	if store == nil {
		return m
	}

	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		slog.Info("no saved market state found, starting fresh")
		return m
	case err != nil:
		slog.Warn("failed to load market state, starting fresh", "error", err)
		return m
	}

	repairs := m.restore(snap)
	slog.Info("market state restored",
		"day", m.day,
		"events", len(m.events),
		"repairs", repairs,
	)
	return m
}

func (m *Market) seed() {
	for _, r := range economy.Regions() {
		for _, c := range economy.Commodities() {
			base := c.Info().BasePrice
			m.prices[r][c] = PricePoint{CurrentPrice: base, History: []float64{base}}
		}
		m.lastEvents[r] = ""
	}
	m.events = nil
	m.day = 0
}

// Day returns the number of days advanced since the market was seeded.
func (m *Market) Day() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.day
}

// LastSaved returns when state was last persisted (zero if never).
func (m *Market) LastSaved() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSaved
}

// Prices returns a copy of the full market state.
func (m *Market) Prices() map[economy.Region]map[economy.Commodity]PricePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[economy.Region]map[economy.Commodity]PricePoint, economy.NumRegions)
	for _, r := range economy.Regions() {
		out[r] = m.regionLocked(r)
	}
	return out
}

// RegionPrices returns a copy of one region's prices.
func (m *Market) RegionPrices(r economy.Region) (map[economy.Commodity]PricePoint, bool) {
	if !r.Valid() {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regionLocked(r), true
}

func (m *Market) regionLocked(r economy.Region) map[economy.Commodity]PricePoint {
	cells := make(map[economy.Commodity]PricePoint, economy.NumCommodities)
	for _, c := range economy.Commodities() {
		cells[c] = m.prices[r][c].clone()
	}
	return cells
}

// PriceHistory returns the history for one region/commodity pair.
func (m *Market) PriceHistory(r economy.Region, c economy.Commodity) (PriceHistory, bool) {
	if !r.Valid() || !c.Valid() {
		return PriceHistory{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PriceHistory{
		Region:    r,
		Commodity: c,
		History:   append([]float64(nil), m.prices[r][c].History...),
		Unit:      c.Info().Unit,
	}, true
}

// Catalog returns the static commodity catalog.
func (m *Market) Catalog() map[economy.Commodity]economy.CommodityInfo {
	return economy.Catalog()
}

// Regions returns the static region list.
func (m *Market) Regions() []economy.Region {
	return economy.Regions()
}

// EventMenu returns the events that can be triggered in r.
func (m *Market) EventMenu(r economy.Region) ([]economy.EventTemplate, bool) {
	if !r.Valid() {
		return nil, false
	}
	return r.Profile().Events, true
}

// EventMenus returns every region's event menu.
func (m *Market) EventMenus() map[economy.Region][]economy.EventTemplate {
	return economy.EventMenus()
}

// LastEvents maps every region to its most recently triggered event, or NoEvent.
func (m *Market) LastEvents() map[economy.Region]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[economy.Region]string, economy.NumRegions)
	for _, r := range economy.Regions() {
		out[r] = m.lastEventLocked(r)
	}
	return out
}

func (m *Market) lastEventLocked(r economy.Region) string {
	if d := m.lastEvents[r]; d != "" {
		return d
	}
	return NoEvent
}

// RecentEvents returns up to RecentEventsLimit of the latest events, oldest first.
func (m *Market) RecentEvents() []EventRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.events) - RecentEventsLimit
	if start < 0 {
		start = 0
	}
	out := make([]EventRecord, 0, len(m.events)-start)
	for _, e := range m.events[start:] {
		out = append(out, e.clone())
	}
	return out
}

func (e EventRecord) clone() EventRecord {
	effects := make(map[economy.Commodity]float64, len(e.Effects))
	for c, v := range e.Effects {
		effects[c] = v
	}
	e.Effects = effects
	return e
}
