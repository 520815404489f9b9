package economy

import (
	"errors"
	"fmt"
)

// ErrUnknownRegion is returned when a region name or id is not known.
var ErrUnknownRegion = errors.New("unknown region")

// Region identifies a regional market.
type Region uint8

const (
	RedExpanse Region = iota
	Verdania
	Solara
	Frostveil
	Eldergraze
	Ironcrag
	Saffronveil
	Mirehold

	NumRegions = int(iota)
)

// EventTemplate is a shock that can be triggered in a region. Effects are
// signed fractional price adjustments (0.2 = +20%).
type EventTemplate struct {
	Description string                `json:"description"`
	Effects     map[Commodity]float64 `json:"effects"`
}

// RegionProfile describes a region's persistent price bias and its event menu.
type RegionProfile struct {
	Name      string                `json:"name"`
	Modifiers map[Commodity]float64 `json:"modifiers"` // applied on every daily tick
	Events    []EventTemplate       `json:"events"`
}

var regions = [NumRegions]RegionProfile{
	RedExpanse: {
		Name: "Red Expanse",
		Modifiers: map[Commodity]float64{
			Timber: 0.2, Wine: 0.15, OliveOil: 0.15, Pepper: 0.1, Saffron: 0.1,
			Iron: -0.1, Copper: -0.1, Silver: -0.05,
		},
		Events: []EventTemplate{
			{"Sandstorm halts rail transport", map[Commodity]float64{Timber: 0.2, OliveOil: 0.15, Wine: 0.1}},
			{"Mine collapse", map[Commodity]float64{Iron: 0.2, Copper: 0.2, Silver: 0.25}},
			{"Bandit raid on railway", map[Commodity]float64{Pepper: 0.2, Furs: 0.2, Silver: 0.15}},
		},
	},
	Verdania: {
		Name:      "Verdania",
		Modifiers: map[Commodity]float64{Timber: -0.1, Iron: 0.1, Silver: 0.1},
		Events: []EventTemplate{
			{"Forest fire", map[Commodity]float64{Timber: 0.2, Woad: 0.15, Furs: 0.1}},
			{"Poor harvest", map[Commodity]float64{Wheat: 0.15, Wool: 0.1}},
			{"Druidic blessing", map[Commodity]float64{Timber: -0.1, Woad: -0.1}},
		},
	},
	Solara: {
		Name:      "Solara",
		Modifiers: map[Commodity]float64{Pepper: -0.05, Saffron: -0.05, Silver: 0.1},
		Events: []EventTemplate{
			{"Disease outbreak", map[Commodity]float64{Wine: 0.2, OliveOil: 0.2, Herring: 0.15}},
			{"Pirate attack", map[Commodity]float64{Pepper: 0.25, Saffron: 0.25, Wine: 0.1}},
			{"Trade boom", map[Commodity]float64{Pepper: -0.1, Saffron: -0.1}},
		},
	},
	Frostveil: {
		Name:      "Frostveil",
		Modifiers: map[Commodity]float64{Pepper: 0.2, Saffron: 0.2, Furs: -0.1},
		Events: []EventTemplate{
			{"Flood", map[Commodity]float64{Furs: 0.2, Herring: 0.2, Timber: 0.15}},
			{"Blizzard", map[Commodity]float64{Furs: 0.25, Herring: 0.1}},
			{"Tribal truce", map[Commodity]float64{Furs: -0.1, Herring: -0.05}},
		},
	},
	Eldergraze: {
		Name:      "Eldergraze",
		Modifiers: map[Commodity]float64{Wheat: -0.1, Wool: -0.05, Madder: -0.05},
		Events: []EventTemplate{
			{"Drought", map[Commodity]float64{Wheat: 0.2, Wool: 0.15, Madder: 0.1}},
			{"Grassland fire", map[Commodity]float64{Wheat: 0.15, Wool: 0.1}},
			{"Bumper crop", map[Commodity]float64{Wheat: -0.1, Madder: -0.1}},
		},
	},
	Ironcrag: {
		Name:      "Ironcrag",
		Modifiers: map[Commodity]float64{Iron: -0.1, Copper: -0.1, Furs: -0.05},
		Events: []EventTemplate{
			{"Avalanche", map[Commodity]float64{Iron: 0.2, Copper: 0.2, Silver: 0.25}},
			{"Mine strike", map[Commodity]float64{Iron: 0.15, Copper: 0.15}},
			{"New vein discovery", map[Commodity]float64{Iron: -0.1, Copper: -0.1}},
		},
	},
	Saffronveil: {
		Name:      "Saffronveil",
		Modifiers: map[Commodity]float64{Pepper: -0.1, Saffron: -0.1, Timber: 0.1},
		Events: []EventTemplate{
			{"Monsoon", map[Commodity]float64{Pepper: 0.2, Saffron: 0.2, Timber: 0.15}},
			{"War with rivals", map[Commodity]float64{Pepper: 0.25, Saffron: 0.25}},
			{"Spice harvest", map[Commodity]float64{Pepper: -0.1, Saffron: -0.1}},
		},
	},
	Mirehold: {
		Name:      "Mirehold",
		Modifiers: map[Commodity]float64{Herring: -0.1, Woad: -0.05},
		Events: []EventTemplate{
			{"Swamp flood", map[Commodity]float64{Herring: 0.2, Woad: 0.15}},
			{"Pest infestation", map[Commodity]float64{Herring: 0.15, Woad: 0.1}},
			{"Fishing boom", map[Commodity]float64{Herring: -0.1, Woad: -0.05}},
		},
	},
}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	return int(r) < NumRegions
}

// Profile returns a copy of the static profile for r. r must be valid.
func (r Region) Profile() RegionProfile {
	p := regions[r]
	mods := make(map[Commodity]float64, len(p.Modifiers))
	for c, m := range p.Modifiers {
		mods[c] = m
	}
	return RegionProfile{Name: p.Name, Modifiers: mods, Events: cloneEvents(p.Events)}
}

// Modifier returns the region's per-tick bias for c and whether one exists.
func (r Region) Modifier(c Commodity) (float64, bool) {
	m, ok := regions[r].Modifiers[c]
	return m, ok
}

// Event returns the event at index i of the region's menu.
func (r Region) Event(i int) (EventTemplate, bool) {
	events := regions[r].Events
	if i < 0 || i >= len(events) {
		return EventTemplate{}, false
	}
	return cloneEvent(events[i]), true
}

func (r Region) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Region(%d)", uint8(r))
	}
	return regions[r].Name
}

func (r Region) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, uint8(r))
	}
	return []byte(regions[r].Name), nil
}

func (r *Region) UnmarshalText(b []byte) error {
	parsed, err := ParseRegion(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRegion looks up a region by display name.
func ParseRegion(name string) (Region, error) {
	for i := range regions {
		if regions[i].Name == name {
			return Region(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
}

// Regions returns every region in declaration order.
func Regions() []Region {
	out := make([]Region, NumRegions)
	for i := range out {
		out[i] = Region(i)
	}
	return out
}

// EventMenus returns every region's event list.
func EventMenus() map[Region][]EventTemplate {
	out := make(map[Region][]EventTemplate, NumRegions)
	for i, p := range regions {
		out[Region(i)] = cloneEvents(p.Events)
	}
	return out
}

func cloneEvents(events []EventTemplate) []EventTemplate {
	out := make([]EventTemplate, len(events))
	for i, e := range events {
		out[i] = cloneEvent(e)
	}
	return out
}

func cloneEvent(e EventTemplate) EventTemplate {
	effects := make(map[Commodity]float64, len(e.Effects))
	for c, v := range e.Effects {
		effects[c] = v
	}
	return EventTemplate{Description: e.Description, Effects: effects}
}
