package options

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energydesk/market-engine/internal/catalog"
)

func TestNormCDF(t *testing.T) {
	tests := []struct {
		x, want float64
	}{
		{0, 0.5},
		{1.0, 0.8413447},
		{-1.0, 0.1586553},
		{1.645, 0.9500151},
		{2.326, 0.9899907},
		{-3.0, 0.0013499},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormCDF(tt.x), 2e-7, "x=%v", tt.x)
	}
	assert.InDelta(t, 1.0, NormCDF(10), 1e-9)
	assert.InDelta(t, 0.0, NormCDF(-10), 1e-9)
}

func TestPrice_PutCallParity(t *testing.T) {
	s, k, tt, r, sigma := 80.0, 85.0, 0.5, RiskFreeRate, 0.3
	c := Price(Call, s, k, tt, r, sigma)
	p := Price(Put, s, k, tt, r, sigma)
	assert.InDelta(t, s-k*math.Exp(-r*tt), c-p, 1e-5)
}

func TestPrice_ConvergesToIntrinsic(t *testing.T) {
	// At-the-money, tiny T: both legs collapse to zero.
	assert.InDelta(t, 0, Price(Call, 100, 100, 1e-12, RiskFreeRate, 0.3), 1e-3)
	assert.InDelta(t, 0, Price(Put, 100, 100, 1e-12, RiskFreeRate, 0.3), 1e-3)

	// Expired: exact intrinsic.
	assert.Equal(t, 5.0, Price(Call, 105, 100, 0, RiskFreeRate, 0.3))
	assert.Equal(t, 0.0, Price(Put, 105, 100, 0, RiskFreeRate, 0.3))
	assert.Equal(t, 7.0, Price(Put, 93, 100, -1, RiskFreeRate, 0.3))

	// In-the-money with tiny T converges too.
	assert.InDelta(t, 5.0, Price(Call, 105, 100, 1e-8, RiskFreeRate, 0.3), 1e-4)
}

func TestComputeGreeks(t *testing.T) {
	call := ComputeGreeks(Call, 100, 100, 1, RiskFreeRate, 0.2)
	put := ComputeGreeks(Put, 100, 100, 1, RiskFreeRate, 0.2)

	assert.InDelta(t, 1.0, call.Delta-put.Delta, 1e-9)
	assert.Equal(t, call.Gamma, put.Gamma)
	assert.Equal(t, call.Vega, put.Vega)
	assert.Greater(t, call.Delta, 0.5)
	assert.Less(t, call.Theta, 0.0)
	assert.Greater(t, call.Rho, 0.0)
	assert.Less(t, put.Rho, 0.0)
	// Vega per vol point: S*n(d1)*sqrt(T)/100 for d1=0.325.
	assert.InDelta(t, 0.3785, call.Vega, 1e-3)
}

func TestComputeGreeks_FloorsTime(t *testing.T) {
	g := ComputeGreeks(Call, 100, 100, 0, RiskFreeRate, 0.2)
	assert.False(t, math.IsNaN(g.Gamma) || math.IsInf(g.Gamma, 0))
	assert.Equal(t, ComputeGreeks(Call, 100, 100, MinTime, RiskFreeRate, 0.2), g)
}

func TestStrikeInterval(t *testing.T) {
	tests := []struct{ price, want float64 }{
		{2.75, 0.25}, {12.8, 0.5}, {42.5, 1.0}, {79.5, 2.5}, {330.5, 5.0}, {2340.5, 10.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StrikeInterval(tt.price), "price %v", tt.price)
	}
}

func henryHub(t *testing.T) catalog.Instrument {
	t.Helper()
	inst, err := catalog.Default().Lookup("Henry Hub")
	require.NoError(t, err)
	return inst
}

func TestPriceChain_Shape(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	chain, err := PriceChain(Request{Instrument: henryHub(t), Forward: 2.81, ExpiryIndex: 2}, rng)
	require.NoError(t, err)

	assert.Equal(t, 0.25, chain.StrikeInterval)
	assert.Equal(t, 2.75, chain.ATMStrike)
	assert.InDelta(t, 0.25, chain.Expiry, 1e-12)
	assert.InDelta(t, 0.1125, chain.BaseVol, 1e-12)
	require.Len(t, chain.Contracts, DefaultStrikes)

	atmRows := 0
	for i, row := range chain.Contracts {
		if i > 0 {
			assert.Greater(t, row.Strike, chain.Contracts[i-1].Strike)
		}
		if row.ATM {
			atmRows++
			assert.Equal(t, chain.ATMStrike, row.Strike)
		}
		assert.Equal(t, row.Strike < chain.Forward, row.Call.ITM)
		assert.Equal(t, row.Strike > chain.Forward, row.Put.ITM)
		assert.LessOrEqual(t, row.Call.Bid, row.Call.Price)
		assert.GreaterOrEqual(t, row.Call.Ask, row.Call.Price)
		assert.GreaterOrEqual(t, row.Put.Bid, 0.0)
		assert.GreaterOrEqual(t, row.Call.Volume, 50)
		assert.GreaterOrEqual(t, row.Put.OpenInterest, 400)
		assert.Greater(t, row.ImpliedVol, 0.0)
	}
	assert.Equal(t, 1, atmRows)
}

func TestPriceChain_PureForSameSource(t *testing.T) {
	req := Request{Instrument: henryHub(t), Forward: 2.81, ExpiryIndex: 0, Strikes: 5}
	a, err := PriceChain(req, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	b, err := PriceChain(req, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Contracts, 5)
}

func TestPriceChain_SkipsNonPositiveStrikes(t *testing.T) {
	inst := henryHub(t)
	chain, err := PriceChain(Request{Instrument: inst, Forward: 0.3, ExpiryIndex: 0, Strikes: 9}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	for _, row := range chain.Contracts {
		assert.Greater(t, row.Strike, 0.0)
	}
	assert.Less(t, len(chain.Contracts), 9)
}

func TestPriceChain_Errors(t *testing.T) {
	inst := henryHub(t)
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := PriceChain(Request{Instrument: inst, Forward: 0}, rng)
	assert.ErrorIs(t, err, ErrInvalidForward)
	_, err = PriceChain(Request{Instrument: inst, Forward: -5}, rng)
	assert.ErrorIs(t, err, ErrInvalidForward)
	_, err = PriceChain(Request{Instrument: inst, Forward: 3, ExpiryIndex: 12}, rng)
	assert.ErrorIs(t, err, ErrInvalidExpiry)
	_, err = PriceChain(Request{Instrument: inst, Forward: 3, Strikes: -1}, rng)
	assert.ErrorIs(t, err, ErrInvalidStrikes)
}
