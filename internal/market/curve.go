package market

import (
	"fmt"
	"math"

	"github.com/energydesk/market-engine/internal/catalog"
)

// RebuildCurve regenerates an instrument's 12-month forward curve from its
// current spot.
func (s *MarketState) RebuildCurve(name string) error {
	inst, err := s.cat.Lookup(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
	}
	s.rebuildCurve(inst)
	return nil
}

func (s *MarketState) rebuildCurve(inst catalog.Instrument) {
	spot := inst.BasePrice
	if p, err := s.Spot(inst.Name); err == nil {
		spot = p
	}
	base := inst.BasePrice
	floor := inst.Floor()

	curve := make([]CurvePoint, CurveMonths)
	for m := 0; m < CurveMonths; m++ {
		seasonal := math.Sin(float64(m+1)/12*2*math.Pi) * base * 0.03
		contango := float64(m) * base * 0.002
		noise := (s.rng.Float64() - 0.5) * base * 0.01
		curve[m] = CurvePoint{
			Month:        m,
			Price:        math.Max(floor, spot+seasonal+contango+noise),
			OpenInterest: int(math.Floor(5000 + s.rng.Float64()*50000)),
		}
	}
	s.curves[inst.Name] = curve
}

// AdvanceCurves perturbs every curve point of every instrument once.
func (s *MarketState) AdvanceCurves() {
	for _, inst := range s.cat.Instruments() {
		s.advanceCurve(inst)
	}
}

func (s *MarketState) advanceCurve(inst catalog.Instrument) {
	curve, ok := s.curves[inst.Name]
	if !ok {
		s.rebuildCurve(inst)
		return
	}
	step := inst.BasePrice * inst.VolatilityPct / 100 / 50
	floor := inst.Floor()
	for i := range curve {
		curve[i].Price = math.Max(floor, curve[i].Price+s.uniform()*step)
		oi := curve[i].OpenInterest + int(math.Floor((s.rng.Float64()-0.5)*200))
		if oi < MinOpenInterest {
			oi = MinOpenInterest
		}
		curve[i].OpenInterest = oi
	}
}

// Curve returns a copy of an instrument's forward curve.
func (s *MarketState) Curve(name string) ([]CurvePoint, error) {
	curve, ok := s.curves[name]
	if !ok {
		if _, err := s.cat.Lookup(name); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoMarketData, name)
	}
	out := make([]CurvePoint, len(curve))
	copy(out, curve)
	return out, nil
}

// ForwardPrice returns the curve price for a delivery month, falling back to
// spot when no curve exists.
func (s *MarketState) ForwardPrice(name string, month int) (float64, int, error) {
	curve, err := s.Curve(name)
	if err == nil && month >= 0 && month < len(curve) {
		return curve[month].Price, curve[month].OpenInterest, nil
	}
	spot, serr := s.Spot(name)
	if serr != nil {
		return 0, 0, serr
	}
	return spot, 0, nil
}
