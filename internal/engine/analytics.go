package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/realm-market/internal/economy"
)

// Volatility ratings.
const (
	RatingHigh   = "High"
	RatingMedium = "Medium"
	RatingLow    = "Low"
)

// Trend directions.
const (
	TrendRising  = "Rising"
	TrendFalling = "Falling"
	TrendStable  = "Stable"
)

// Regional stability labels.
const (
	StabilityStable   = "Stable"
	StabilityVolatile = "Volatile"
)

// WeekLookback is how many history points back the week change compares against.
const WeekLookback = 7

// ProfitOpportunity is the margin from buying in the export region and
// selling in the import region.
type ProfitOpportunity struct {
	Commodity   economy.Commodity `json:"commodity"`
	ExportPrice float64           `json:"export_price"`
	ImportPrice float64           `json:"import_price"`
	Margin      float64           `json:"profit_margin"`
	Percentage  float64           `json:"profit_percentage"`
	Unit        string            `json:"unit"`
}

// CommodityVolatility is the realized volatility of one commodity averaged over regions.
type CommodityVolatility struct {
	Commodity         economy.Commodity `json:"commodity"`
	AverageVolatility float64           `json:"average_volatility"`
	BaseVolatility    float64           `json:"base_volatility"`
	Rating            string            `json:"volatility_rating"`
}

// Trend is the short-term direction of one commodity in one region.
// Changes are percentages.
type Trend struct {
	Commodity    economy.Commodity `json:"commodity"`
	RecentChange float64           `json:"recent_change"`
	WeekChange   float64           `json:"week_change"`
	Direction    string            `json:"trend"`
}

// RegionTrends groups trends by region.
type RegionTrends struct {
	Region economy.Region `json:"region"`
	Trends []Trend        `json:"trends"`
}

// RegionPerformance summarizes one region. AverageChange is a percentage.
type RegionPerformance struct {
	Region           economy.Region `json:"region"`
	TotalMarketValue float64        `json:"total_market_value"`
	AverageChange    float64        `json:"average_change"`
	Stability        string         `json:"stability"`
	LastEvent        string         `json:"last_event"`
}

// ProfitOpportunities compares every commodity between two regions, best
// percentage first. Equal percentages keep catalog order.
func (m *Market) ProfitOpportunities(export, imp economy.Region) ([]ProfitOpportunity, error) {
	if !export.Valid() {
		return nil, fmt.Errorf("export %w: %d", ErrUnknownRegion, uint8(export))
	}
	if !imp.Valid() {
		return nil, fmt.Errorf("import %w: %d", ErrUnknownRegion, uint8(imp))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProfitOpportunity, 0, economy.NumCommodities)
	for _, c := range economy.Commodities() {
		exportPrice := m.prices[export][c].CurrentPrice
		importPrice := m.prices[imp][c].CurrentPrice
		margin := importPrice - exportPrice

		pct := 0.0
		if exportPrice > 0 {
			pct = margin / exportPrice * 100
		}
		out = append(out, ProfitOpportunity{
			Commodity:   c,
			ExportPrice: exportPrice,
			ImportPrice: importPrice,
			Margin:      margin,
			Percentage:  pct,
			Unit:        c.Info().Unit,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percentage > out[j].Percentage
	})
	return out, nil
}

// VolatilityAnalysis reports realized volatility per commodity in catalog order.
func (m *Market) VolatilityAnalysis() []CommodityVolatility {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CommodityVolatility, 0, economy.NumCommodities)
	for _, c := range economy.Commodities() {
		var sum float64
		n := 0
		for _, r := range economy.Regions() {
			v, ok := RealizedVolatility(m.prices[r][c].History)
			if !ok {
				continue
			}
			sum += v
			n++
		}

		avg := 0.0
		if n > 0 {
			avg = sum / float64(n)
		}
		out = append(out, CommodityVolatility{
			Commodity:         c,
			AverageVolatility: avg,
			BaseVolatility:    c.Info().Volatility,
			Rating:            ClassifyVolatility(avg),
		})
	}
	return out
}

// TrendAnalysis reports per-region, per-commodity trends.
func (m *Market) TrendAnalysis() []RegionTrends {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RegionTrends, 0, economy.NumRegions)
	for _, r := range economy.Regions() {
		trends := make([]Trend, 0, economy.NumCommodities)
		for _, c := range economy.Commodities() {
			t := TrendOf(m.prices[r][c].History)
			t.Commodity = c
			trends = append(trends, t)
		}
		out = append(out, RegionTrends{Region: r, Trends: trends})
	}
	return out
}

// RegionalPerformance summarizes every region.
func (m *Market) RegionalPerformance() []RegionPerformance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RegionPerformance, 0, economy.NumRegions)
	for _, r := range economy.Regions() {
		var total, sum float64
		n := 0
		for _, c := range economy.Commodities() {
			pp := m.prices[r][c]
			total += pp.CurrentPrice
			if change, ok := recentChange(pp.History); ok {
				sum += change
				n++
			}
		}

		avg := 0.0
		if n > 0 {
			avg = sum / float64(n)
		}
		out = append(out, RegionPerformance{
			Region:           r,
			TotalMarketValue: total,
			AverageChange:    avg * 100,
			Stability:        ClassifyStability(avg),
			LastEvent:        m.lastEventLocked(r),
		})
	}
	return out
}

// RealizedVolatility is the mean absolute relative change between
// consecutive history points. ok is false with fewer than two points.
func RealizedVolatility(history []float64) (float64, bool) {
	if len(history) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(history); i++ {
		sum += math.Abs((history[i] - history[i-1]) / history[i-1])
	}
	return sum / float64(len(history)-1), true
}

// TrendOf computes the trend of one history. Commodity is left unset.
func TrendOf(history []float64) Trend {
	recent, ok := recentChange(history)
	if !ok {
		return Trend{Direction: TrendStable}
	}
	recent *= 100

	week := recent
	if n := len(history); n >= WeekLookback {
		week = (history[n-1] - history[n-WeekLookback]) / history[n-WeekLookback] * 100
	}
	return Trend{
		RecentChange: recent,
		WeekChange:   week,
		Direction:    ClassifyTrend(recent),
	}
}

// recentChange is the fractional change between the last two points.
func recentChange(history []float64) (float64, bool) {
	n := len(history)
	if n < 2 {
		return 0, false
	}
	return (history[n-1] - history[n-2]) / history[n-2], true
}

// ClassifyVolatility rates an average realized volatility.
func ClassifyVolatility(v float64) string {
	switch {
	case v > 0.15:
		return RatingHigh
	case v > 0.05:
		return RatingMedium
	default:
		return RatingLow
	}
}

// ClassifyTrend labels a recent change given in percent.
func ClassifyTrend(pct float64) string {
	switch {
	case pct > 2:
		return TrendRising
	case pct < -2:
		return TrendFalling
	default:
		return TrendStable
	}
}

// ClassifyStability labels an average fractional change.
func ClassifyStability(avg float64) string {
	if math.Abs(avg) < 0.02 {
		return StabilityStable
	}
	return StabilityVolatile
}
