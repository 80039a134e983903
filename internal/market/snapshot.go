package market

import (
	"fmt"
	"math/rand/v2"
)

// Snapshot is a serializable copy of a MarketState, including the random
// source, so a restored state replays identically.
type Snapshot struct {
	Prices map[string][]float64    `json:"prices"`
	Curves map[string][]CurvePoint `json:"curves"`
	Bias   map[string]float64      `json:"bias,omitempty"`
	Ticks  uint64                  `json:"ticks"`
	RNG    []byte                  `json:"rng"`
}

// Snapshot captures the full state.
func (s *MarketState) Snapshot() (Snapshot, error) {
	rng, err := s.pcg.MarshalBinary()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot rng: %w", err)
	}
	snap := Snapshot{
		Prices: make(map[string][]float64, len(s.prices)),
		Curves: make(map[string][]CurvePoint, len(s.curves)),
		Ticks:  s.ticks,
		RNG:    rng,
	}
	for k, v := range s.prices {
		snap.Prices[k] = append([]float64(nil), v...)
	}
	for k, v := range s.curves {
		snap.Curves[k] = append([]CurvePoint(nil), v...)
	}
	if len(s.bias) > 0 {
		snap.Bias = make(map[string]float64, len(s.bias))
		for k, v := range s.bias {
			snap.Bias[k] = v
		}
	}
	return snap, nil
}

// Restore replaces the state with snap. Instruments missing from the
// snapshot keep their current series; unknown names are rejected.
func (s *MarketState) Restore(snap Snapshot) error {
	for name, hist := range snap.Prices {
		if _, err := s.cat.Lookup(name); err != nil {
			return fmt.Errorf("%w: unknown instrument %s", ErrBadSnapshot, name)
		}
		if len(hist) == 0 || len(hist) > HistoryCap {
			return fmt.Errorf("%w: %s has %d points", ErrBadSnapshot, name, len(hist))
		}
	}
	for name, curve := range snap.Curves {
		if _, err := s.cat.Lookup(name); err != nil {
			return fmt.Errorf("%w: unknown instrument %s", ErrBadSnapshot, name)
		}
		if len(curve) != CurveMonths {
			return fmt.Errorf("%w: %s curve has %d months", ErrBadSnapshot, name, len(curve))
		}
	}

	pcg := new(rand.PCG)
	if len(snap.RNG) > 0 {
		if err := pcg.UnmarshalBinary(snap.RNG); err != nil {
			return fmt.Errorf("%w: rng: %v", ErrBadSnapshot, err)
		}
		s.pcg = pcg
		s.rng = rand.New(pcg)
	}
	for k, v := range snap.Prices {
		s.prices[k] = append(make([]float64, 0, HistoryCap), v...)
	}
	for k, v := range snap.Curves {
		s.curves[k] = append([]CurvePoint(nil), v...)
	}
	s.SetWeatherBias(snap.Bias)
	s.ticks = snap.Ticks
	return nil
}
