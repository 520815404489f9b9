package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/realm-market/internal/economy"
	"github.com/talgya/realm-market/internal/snapshot"
)

// PersistError reports that a mutation was applied in memory but the
// snapshot could not be written.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist market state: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Snapshot returns the persisted form of the current state.
func (m *Market) Snapshot() *snapshot.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Market) snapshotLocked() *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		Day:          m.day,
		Market:       make(map[string]map[string]snapshot.PricePoint, economy.NumRegions),
		LastEvents:   make(map[string]*string, economy.NumRegions),
		EventHistory: make([]snapshot.EventRecord, 0, len(m.events)),
	}

	for _, r := range economy.Regions() {
		cells := make(map[string]snapshot.PricePoint, economy.NumCommodities)
		for _, c := range economy.Commodities() {
			pp := m.prices[r][c]
			cells[c.String()] = snapshot.PricePoint{
				CurrentPrice: pp.CurrentPrice,
				History:      append([]float64(nil), pp.History...),
			}
		}
		snap.Market[r.String()] = cells

		if d := m.lastEvents[r]; d != "" {
			snap.LastEvents[r.String()] = &d
		} else {
			snap.LastEvents[r.String()] = nil
		}
	}

	for _, e := range m.events {
		effects := make(map[string]float64, len(e.Effects))
		for c, v := range e.Effects {
			effects[c.String()] = v
		}
		snap.EventHistory = append(snap.EventHistory, snapshot.EventRecord{
			ID:          e.ID,
			Timestamp:   snapshot.Timestamp{Time: e.Timestamp},
			Region:      e.Region.String(),
			Description: e.Description,
			Effects:     effects,
		})
	}
	return snap
}

// persistLocked writes the whole state. Caller holds the write lock.
func (m *Market) persistLocked(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, m.snapshotLocked()); err != nil {
		return &PersistError{Err: err}
	}
	m.lastSaved = m.now()
	return nil
}

// restore replaces state with snap, repairing what it can: unknown names
// are dropped, missing cells are seeded at base price, histories are
// trimmed to the window, prices and history points are clamped to the
// floor. It returns the
// number of repairs made.
func (m *Market) restore(snap *snapshot.Snapshot) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seed()
	m.day = snap.Day
	repairs := 0

	for regionName, cells := range snap.Market {
		r, err := economy.ParseRegion(regionName)
		if err != nil {
			slog.Warn("dropping unknown region from snapshot", "region", regionName)
			repairs++
			continue
		}
		for commodityName, cell := range cells {
			c, err := economy.ParseCommodity(commodityName)
			if err != nil {
				slog.Warn("dropping unknown commodity from snapshot", "region", regionName, "commodity", commodityName)
				repairs++
				continue
			}
			pp, fixed := repairCell(c, cell)
			if fixed {
				repairs++
			}
			m.prices[r][c] = pp
		}
		if len(cells) < economy.NumCommodities {
			repairs += economy.NumCommodities - len(cells)
		}
	}
	if len(snap.Market) < economy.NumRegions {
		repairs += economy.NumRegions - len(snap.Market)
	}

	for regionName, desc := range snap.LastEvents {
		r, err := economy.ParseRegion(regionName)
		if err != nil || desc == nil {
			continue
		}
		m.lastEvents[r] = *desc
	}

	history := snap.EventHistory
	if len(history) > EventHistoryWindow {
		repairs++
		history = history[len(history)-EventHistoryWindow:]
	}
	for _, rec := range history {
		r, err := economy.ParseRegion(rec.Region)
		if err != nil {
			repairs++
			continue
		}
		effects := make(map[economy.Commodity]float64, len(rec.Effects))
		for name, v := range rec.Effects {
			c, err := economy.ParseCommodity(name)
			if err != nil {
				continue
			}
			effects[c] = v
		}
		m.events = append(m.events, EventRecord{
			ID:          rec.ID,
			Timestamp:   rec.Timestamp.Time,
			Region:      r,
			Description: rec.Description,
			Effects:     effects,
		})
	}
	return repairs
}

func repairCell(c economy.Commodity, cell snapshot.PricePoint) (PricePoint, bool) {
	fixed := false
	floor := c.Floor()

	price := cell.CurrentPrice
	if math.IsNaN(price) || price < floor {
		price = floor
		fixed = true
	}

	hist := cell.History
	if len(hist) > HistoryWindow {
		hist = hist[len(hist)-HistoryWindow:]
		fixed = true
	}
	hist = append([]float64(nil), hist...)
	for i, v := range hist {
		if math.IsNaN(v) || v < floor {
			hist[i] = floor
			fixed = true
		}
	}
	if len(hist) == 0 {
		hist = []float64{price}
		fixed = true
	}
	return PricePoint{CurrentPrice: price, History: hist}, fixed
}
