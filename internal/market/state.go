// Package market owns the simulated price paths and forward curves of every
// instrument. All mutable simulation state lives in a single MarketState
// that the engine passes around explicitly.
package market

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/energydesk/market-engine/internal/catalog"
)

const (
	// HistorySeed is the number of points generated at initialization.
	HistorySeed = 180
	// HistoryCap bounds every price series; the oldest point is evicted first.
	HistoryCap = 200
	// CurveMonths is the number of delivery months on a forward curve.
	CurveMonths = 12
	// MinOpenInterest floors open interest on curve updates.
	MinOpenInterest = 100
)

var (
	ErrUnknownInstrument = errors.New("market: unknown instrument")
	ErrNoMarketData      = errors.New("market: no market data")
	ErrBadSnapshot       = errors.New("market: invalid snapshot")
)

// CurvePoint is one delivery month of a forward curve.
type CurvePoint struct {
	Month        int     `json:"month"`
	Price        float64 `json:"price"`
	OpenInterest int     `json:"open_interest"`
}

// MarketState holds price histories, forward curves and the random source
// that evolves them. It is not safe for concurrent use; the engine
// serializes access.
type MarketState struct {
	cat    *catalog.Catalog
	pcg    *rand.PCG
	rng    *rand.Rand
	prices map[string][]float64
	curves map[string][]CurvePoint
	bias   map[string]float64
	ticks  uint64
}

// New seeds history and curves for every catalog instrument. The same seed
// always produces the same market.
func New(cat *catalog.Catalog, seed uint64) *MarketState {
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	s := &MarketState{
		cat:    cat,
		pcg:    pcg,
		rng:    rand.New(pcg),
		prices: make(map[string][]float64, cat.Len()),
		curves: make(map[string][]CurvePoint, cat.Len()),
	}
	for _, inst := range cat.Instruments() {
		s.prices[inst.Name] = s.seedHistory(inst)
	}
	for _, inst := range cat.Instruments() {
		s.rebuildCurve(inst)
	}
	return s
}

// Catalog returns the instrument universe the state was built from.
func (s *MarketState) Catalog() *catalog.Catalog { return s.cat }

// Ticks returns the number of Advance calls applied so far.
func (s *MarketState) Ticks() uint64 { return s.ticks }

// SetWeatherBias replaces the per-instrument weather bias. A nil map clears it.
func (s *MarketState) SetWeatherBias(bias map[string]float64) {
	if len(bias) == 0 {
		s.bias = nil
		return
	}
	s.bias = make(map[string]float64, len(bias))
	for k, v := range bias {
		s.bias[k] = v
	}
}

// uniform returns a draw from U(-1, 1).
func (s *MarketState) uniform() float64 {
	return (s.rng.Float64() - 0.5) * 2
}

func (s *MarketState) seedHistory(inst catalog.Instrument) []float64 {
	step := inst.BasePrice * inst.VolatilityPct / 100 / 15
	floor := inst.Floor()
	hist := make([]float64, 0, HistoryCap)
	p := inst.BasePrice
	for i := 0; i < HistorySeed; i++ {
		p = math.Max(floor, p+s.uniform()*step)
		hist = append(hist, p)
	}
	return hist
}

// Advance moves every instrument exactly one step along its price path.
func (s *MarketState) Advance() {
	for _, inst := range s.cat.Instruments() {
		s.advance(inst)
	}
	s.ticks++
}

func (s *MarketState) advance(inst catalog.Instrument) {
	hist := s.prices[inst.Name]
	last := inst.BasePrice
	if len(hist) > 0 {
		last = hist[len(hist)-1]
	}

	next := last + s.uniform()*(inst.BasePrice*inst.VolatilityPct/100/15)
	if b, ok := s.bias[inst.Name]; ok && b != 0 && inst.WeatherSensitive() {
		next += last * b * (0.3 + s.rng.Float64()*0.4)
	}
	next = math.Max(inst.Floor(), next)

	hist = append(hist, next)
	if len(hist) > HistoryCap {
		hist = append(hist[:0:0], hist[len(hist)-HistoryCap:]...)
	}
	s.prices[inst.Name] = hist
}

// Mark appends an externally observed price to an instrument's series,
// clamped to its floor. Used for replay and admin overrides.
func (s *MarketState) Mark(name string, price float64) error {
	inst, err := s.cat.Lookup(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
	}
	hist := append(s.prices[name], math.Max(inst.Floor(), price))
	if len(hist) > HistoryCap {
		hist = append(hist[:0:0], hist[len(hist)-HistoryCap:]...)
	}
	s.prices[name] = hist
	return nil
}

// Spot returns the latest price of an instrument.
func (s *MarketState) Spot(name string) (float64, error) {
	hist, ok := s.prices[name]
	if !ok {
		if _, err := s.cat.Lookup(name); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
		}
		return 0, fmt.Errorf("%w: %s", ErrNoMarketData, name)
	}
	if len(hist) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoMarketData, name)
	}
	return hist[len(hist)-1], nil
}

// History returns a copy of an instrument's price series, oldest first.
func (s *MarketState) History(name string) ([]float64, error) {
	if _, err := s.Spot(name); err != nil {
		return nil, err
	}
	out := make([]float64, len(s.prices[name]))
	copy(out, s.prices[name])
	return out, nil
}

// Change returns the last step's absolute and percentage move.
func (s *MarketState) Change(name string) (abs, pct float64, err error) {
	hist, err := s.History(name)
	if err != nil {
		return 0, 0, err
	}
	if len(hist) < 2 {
		return 0, 0, nil
	}
	prev, last := hist[len(hist)-2], hist[len(hist)-1]
	abs = last - prev
	if prev != 0 {
		pct = abs / math.Abs(prev) * 100
	}
	return abs, pct, nil
}

// Quote is the latest price of an instrument with its last move.
type Quote struct {
	Hub       string         `json:"hub"`
	Sector    catalog.Sector `json:"sector"`
	Price     float64        `json:"price"`
	Change    float64        `json:"change"`
	ChangePct float64        `json:"change_pct"`
	Unit      string         `json:"unit"`
}

// Quotes returns the latest quote of every instrument in catalog order.
func (s *MarketState) Quotes() []Quote {
	out := make([]Quote, 0, s.cat.Len())
	for _, inst := range s.cat.Instruments() {
		price, err := s.Spot(inst.Name)
		if err != nil {
			continue
		}
		abs, pct, _ := s.Change(inst.Name)
		out = append(out, Quote{
			Hub: inst.Name, Sector: inst.Sector, Price: price,
			Change: abs, ChangePct: pct, Unit: inst.Unit,
		})
	}
	return out
}
