// Package catalog holds the static instrument universe of the desk: hubs
// grouped by sector, each with a base price and a volatility parameter, and
// the instrument-type table that drives margin, scenario and spread rules.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sector groups instruments that share a market and a set of tradable types.
type Sector string

const (
	SectorGas     Sector = "ng"
	SectorCrude   Sector = "crude"
	SectorPower   Sector = "power"
	SectorFreight Sector = "freight"
	SectorAg      Sector = "ag"
	SectorMetals  Sector = "metals"
	SectorNGL     Sector = "ngls"
	SectorLNG     Sector = "lng"
)

// Sectors lists every sector in display order.
var Sectors = []Sector{
	SectorGas, SectorCrude, SectorPower, SectorFreight,
	SectorAg, SectorMetals, SectorNGL, SectorLNG,
}

var (
	ErrUnknownSector     = errors.New("catalog: unknown sector")
	ErrUnknownInstrument = errors.New("catalog: unknown instrument")
	ErrDuplicate         = errors.New("catalog: duplicate instrument")
	ErrInvalidParameter  = errors.New("catalog: invalid instrument parameter")
)

// ParseSector maps a sector code (case-insensitive) to a Sector.
func ParseSector(s string) (Sector, error) {
	want := Sector(strings.ToLower(strings.TrimSpace(s)))
	for _, sec := range Sectors {
		if sec == want {
			return sec, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSector, s)
}

// FloorPolicy decides how low a simulated price may fall.
type FloorPolicy int

const (
	// FloorFraction floors prices at 40% of base.
	FloorFraction FloorPolicy = iota
	// FloorNegative allows prices down to -50% of base (power).
	FloorNegative
)

// Instrument is an immutable tradable hub.
type Instrument struct {
	Name          string      `json:"name"`
	Sector        Sector      `json:"sector"`
	BasePrice     float64     `json:"base_price"`
	VolatilityPct float64     `json:"volatility_pct"`
	Unit          string      `json:"unit"`
	FloorPolicy   FloorPolicy `json:"floor_policy"`
}

// Floor returns the lowest price the simulator may produce for i.
func (i Instrument) Floor() float64 {
	if i.FloorPolicy == FloorNegative {
		return -0.5 * i.BasePrice
	}
	return 0.4 * i.BasePrice
}

// WeatherSensitive reports whether weather bias feeds into i's price path.
func (i Instrument) WeatherSensitive() bool {
	return i.Sector == SectorGas || i.Sector == SectorPower
}

// Catalog is a read-only index of instruments. Safe for concurrent use
// once constructed.
type Catalog struct {
	instruments []Instrument
	byName      map[string]int
}

// New builds a catalog, rejecting duplicate names and non-positive parameters.
func New(instruments []Instrument) (*Catalog, error) {
	c := &Catalog{
		instruments: make([]Instrument, 0, len(instruments)),
		byName:      make(map[string]int, len(instruments)),
	}
	for _, inst := range instruments {
		if inst.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidParameter)
		}
		if _, dup := c.byName[inst.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, inst.Name)
		}
		if inst.BasePrice <= 0 || inst.VolatilityPct <= 0 {
			return nil, fmt.Errorf("%w: %s base=%v vol=%v", ErrInvalidParameter,
				inst.Name, inst.BasePrice, inst.VolatilityPct)
		}
		if _, err := ParseSector(string(inst.Sector)); err != nil {
			return nil, err
		}
		c.byName[inst.Name] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}
	return c, nil
}

// Default returns the full desk universe.
func Default() *Catalog {
	c, err := New(defaultInstruments())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the instrument with the given name.
func (c *Catalog) Lookup(name string) (Instrument, error) {
	idx, ok := c.byName[name]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
	}
	return c.instruments[idx], nil
}

// Instruments returns every instrument in catalog order.
func (c *Catalog) Instruments() []Instrument {
	out := make([]Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

// BySector returns the instruments of one sector in catalog order.
func (c *Catalog) BySector(s Sector) []Instrument {
	var out []Instrument
	for _, inst := range c.instruments {
		if inst.Sector == s {
			out = append(out, inst)
		}
	}
	return out
}

// Names returns instrument names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.instruments))
	for _, inst := range c.instruments {
		names = append(names, inst.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of instruments.
func (c *Catalog) Len() int { return len(c.instruments) }
