package economy

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCatalogCoversEveryCommodity(t *testing.T) {
	cat := Catalog()
	if len(cat) != NumCommodities {
		t.Fatalf("catalog has %d entries, want %d", len(cat), NumCommodities)
	}
	for _, c := range Commodities() {
		info := cat[c]
		if info.Name == "" || info.Unit == "" {
			t.Errorf("%d: missing name or unit: %+v", c, info)
		}
		if info.BasePrice <= 0 {
			t.Errorf("%s: base price %v not positive", c, info.BasePrice)
		}
		if info.Volatility < 0 || info.Volatility > 1 {
			t.Errorf("%s: volatility %v outside [0,1]", c, info.Volatility)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, c := range Commodities() {
		got, err := ParseCommodity(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCommodity(%q) = %v, %v", c.String(), got, err)
		}
	}
	for _, r := range Regions() {
		got, err := ParseRegion(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRegion(%q) = %v, %v", r.String(), got, err)
		}
	}

	if _, err := ParseRegion("Nowhere"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("ParseRegion(Nowhere) err = %v, want ErrUnknownRegion", err)
	}
	if _, err := ParseCommodity("unobtainium"); !errors.Is(err, ErrUnknownCommodity) {
		t.Errorf("ParseCommodity(unobtainium) err = %v, want ErrUnknownCommodity", err)
	}
}

func TestRegionEventsAndModifiers(t *testing.T) {
	for _, r := range Regions() {
		p := r.Profile()
		if len(p.Events) != 3 {
			t.Errorf("%s: %d events, want 3", r, len(p.Events))
		}
	}

	ev, ok := Saffronveil.Event(2)
	if !ok || ev.Description != "Spice harvest" || ev.Effects[Pepper] != -0.1 {
		t.Fatalf("Saffronveil event 2 = %+v, %v", ev, ok)
	}
	if _, ok := Solara.Event(999); ok {
		t.Errorf("Solara.Event(999) should not exist")
	}
	if _, ok := Solara.Event(-1); ok {
		t.Errorf("Solara.Event(-1) should not exist")
	}

	if m, ok := Frostveil.Modifier(Furs); !ok || m != -0.1 {
		t.Errorf("Frostveil furs modifier = %v, %v", m, ok)
	}
	if _, ok := Mirehold.Modifier(Silver); ok {
		t.Errorf("Mirehold should have no silver modifier")
	}
}

func TestStaticTablesAreNotAliased(t *testing.T) {
	ev, _ := Solara.Event(0)
	ev.Effects[Wine] = 99
	again, _ := Solara.Event(0)
	if again.Effects[Wine] != 0.2 {
		t.Fatalf("mutating a returned event leaked into the table: %v", again.Effects[Wine])
	}
}

func TestJSONKeysUseNames(t *testing.T) {
	b, err := json.Marshal(map[Commodity]float64{Pepper: 1.5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"pepper":1.5}` {
		t.Fatalf("got %s", b)
	}

	var m map[Region]string
	if err := json.Unmarshal([]byte(`{"Red Expanse":"x"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m[RedExpanse] != "x" {
		t.Fatalf("got %v", m)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		price float64
		unit  string
		want  string
	}{
		{1.35, "gp/lb", "1.35 gp"},
		{4, "sp/gallon", "4.00 sp"},
		{0.014, "cp/lb", "0.01 cp"},
		{1.5, "sp/cubic foot", "1.50 sp"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.price, tc.unit); got != tc.want {
			t.Errorf("FormatPrice(%v, %q) = %q, want %q", tc.price, tc.unit, got, tc.want)
		}
	}
}
