// Package economy holds the static reference tables of the market: the
// commodity catalog and the region profiles with their event menus.
package economy

import (
	"errors"
	"fmt"
)

// ErrUnknownCommodity is returned when a commodity name is not in the catalog.
var ErrUnknownCommodity = errors.New("unknown commodity")

// Commodity identifies a tradeable good. Values index the catalog.
type Commodity uint8

const (
	Wheat Commodity = iota
	Wool
	Salt
	Pepper
	Saffron
	Wine
	OliveOil
	Herring
	Iron
	Copper
	Silver
	Timber
	Furs
	Woad
	Madder

	NumCommodities = int(iota)
)

// CommodityInfo is one catalog entry. Prices are in the currency named by Unit.
type CommodityInfo struct {
	Name       string  `json:"name"`
	BasePrice  float64 `json:"base_price"`
	Unit       string  `json:"unit"`
	Volatility float64 `json:"volatility"` // stddev of the daily relative move
}

// catalog uses the 1340 CE reference prices, expressed in gp/sp/cp.
var catalog = [NumCommodities]CommodityInfo{
	Wheat:    {Name: "wheat", BasePrice: 0.01, Unit: "cp/lb", Volatility: 0.1},
	Wool:     {Name: "wool", BasePrice: 5.0, Unit: "sp/lb", Volatility: 0.15},
	Salt:     {Name: "salt", BasePrice: 0.05, Unit: "cp/lb", Volatility: 0.1},
	Pepper:   {Name: "pepper", BasePrice: 1.5, Unit: "gp/lb", Volatility: 0.3},
	Saffron:  {Name: "saffron", BasePrice: 15.0, Unit: "gp/lb", Volatility: 0.4},
	Wine:     {Name: "wine", BasePrice: 4.0, Unit: "sp/gallon", Volatility: 0.15},
	OliveOil: {Name: "olive_oil", BasePrice: 7.0, Unit: "sp/gallon", Volatility: 0.2},
	Herring:  {Name: "herring", BasePrice: 0.04, Unit: "cp/lb", Volatility: 0.1},
	Iron:     {Name: "iron", BasePrice: 0.1, Unit: "sp/lb", Volatility: 0.1},
	Copper:   {Name: "copper", BasePrice: 0.5, Unit: "sp/lb", Volatility: 0.15},
	Silver:   {Name: "silver", BasePrice: 5.0, Unit: "gp/lb", Volatility: 0.2},
	Timber:   {Name: "timber", BasePrice: 1.5, Unit: "sp/cubic foot", Volatility: 0.2},
	Furs:     {Name: "furs", BasePrice: 1.5, Unit: "gp/lb", Volatility: 0.3},
	Woad:     {Name: "woad", BasePrice: 3.0, Unit: "sp/lb", Volatility: 0.15},
	Madder:   {Name: "madder", BasePrice: 2.0, Unit: "sp/lb", Volatility: 0.15},
}

// PriceFloorRatio is the fraction of base price a commodity can never fall below.
const PriceFloorRatio = 0.1

// Valid reports whether c is a catalog commodity.
func (c Commodity) Valid() bool {
	return int(c) < NumCommodities
}

// Info returns the catalog entry for c. c must be valid.
func (c Commodity) Info() CommodityInfo {
	return catalog[c]
}

// Floor returns the minimum price for c.
func (c Commodity) Floor() float64 {
	return PriceFloorRatio * catalog[c].BasePrice
}

func (c Commodity) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Commodity(%d)", uint8(c))
	}
	return catalog[c].Name
}

// MarshalText encodes the commodity by name so maps keyed by Commodity
// serialize as {"pepper": ...}.
func (c Commodity) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommodity, uint8(c))
	}
	return []byte(catalog[c].Name), nil
}

func (c *Commodity) UnmarshalText(b []byte) error {
	parsed, err := ParseCommodity(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCommodity looks up a commodity by catalog name.
func ParseCommodity(name string) (Commodity, error) {
	for i := range catalog {
		if catalog[i].Name == name {
			return Commodity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommodity, name)
}

// Commodities returns every commodity in catalog order.
func Commodities() []Commodity {
	out := make([]Commodity, NumCommodities)
	for i := range out {
		out[i] = Commodity(i)
	}
	return out
}

// Catalog returns the catalog keyed by commodity.
func Catalog() map[Commodity]CommodityInfo {
	out := make(map[Commodity]CommodityInfo, NumCommodities)
	for i, info := range catalog {
		out[Commodity(i)] = info
	}
	return out
}
