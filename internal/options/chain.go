package options

import (
	"errors"
	"fmt"
	"math"

	"github.com/energydesk/market-engine/internal/catalog"
)

const (
	// RiskFreeRate is the fixed annual rate used for every chain.
	RiskFreeRate = 0.045
	// DefaultStrikes is the chain width when the caller passes zero.
	DefaultStrikes = 9
	// MaxExpiries matches the forward curve length.
	MaxExpiries = 12
	// DefaultFuturesOI seeds open interest when the curve has none.
	DefaultFuturesOI = 10000
)

var (
	ErrInvalidForward = errors.New("options: forward price must be positive")
	ErrInvalidExpiry  = errors.New("options: expiry index out of range")
	ErrInvalidStrikes = errors.New("options: strike count must be positive")
)

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Quote is one side (call or put) of a strike row.
type Quote struct {
	Price        float64 `json:"price"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Volume       int     `json:"volume"`
	OpenInterest int     `json:"open_interest"`
	ITM          bool    `json:"itm"`
	Greeks
}

// Contract is a strike row of the chain.
type Contract struct {
	Strike     float64 `json:"strike"`
	Expiry     float64 `json:"expiry_years"`
	ImpliedVol float64 `json:"implied_vol"`
	Moneyness  float64 `json:"moneyness"`
	ATM        bool    `json:"atm"`
	Call       Quote   `json:"call"`
	Put        Quote   `json:"put"`
}

// Chain is a full option chain for one instrument and delivery month.
type Chain struct {
	Instrument     string     `json:"instrument"`
	Forward        float64    `json:"forward"`
	ExpiryIndex    int        `json:"expiry_index"`
	Expiry         float64    `json:"expiry_years"`
	StrikeInterval float64    `json:"strike_interval"`
	ATMStrike      float64    `json:"atm_strike"`
	BaseVol        float64    `json:"base_vol"`
	Contracts      []Contract `json:"contracts"`
}

// Request describes a chain to price.
type Request struct {
	Instrument  catalog.Instrument
	Forward     float64
	ExpiryIndex int
	Strikes     int
	FuturesOI   int
}

// PriceChain synthesizes a chain around the forward price. It has no side
// effects beyond drawing from rng.
func PriceChain(req Request, rng Source) (Chain, error) {
	if req.Forward <= 0 || math.IsNaN(req.Forward) || math.IsInf(req.Forward, 0) {
		return Chain{}, fmt.Errorf("%w: %v", ErrInvalidForward, req.Forward)
	}
	if req.ExpiryIndex < 0 || req.ExpiryIndex >= MaxExpiries {
		return Chain{}, fmt.Errorf("%w: %d", ErrInvalidExpiry, req.ExpiryIndex)
	}
	n := req.Strikes
	if n == 0 {
		n = DefaultStrikes
	}
	if n < 0 {
		return Chain{}, fmt.Errorf("%w: %d", ErrInvalidStrikes, n)
	}
	futOI := req.FuturesOI
	if futOI <= 0 {
		futOI = DefaultFuturesOI
	}

	f := req.Forward
	interval := StrikeInterval(f)
	atm := math.Round(f/interval) * interval
	t := float64(req.ExpiryIndex+1) / 12
	baseVol := req.Instrument.VolatilityPct / 100 * 2.5
	halfWidth := n / 2

	chain := Chain{
		Instrument:     req.Instrument.Name,
		Forward:        f,
		ExpiryIndex:    req.ExpiryIndex,
		Expiry:         t,
		StrikeInterval: interval,
		ATMStrike:      roundTo(atm, 6),
		BaseVol:        baseVol,
		Contracts:      make([]Contract, 0, 2*halfWidth+1),
	}

	for i := -halfWidth; i <= halfWidth; i++ {
		k := roundTo(atm+float64(i)*interval, 6)
		if k <= 0 {
			continue
		}
		m := math.Log(k / f)
		iv := baseVol * (1 + 0.15*m*m + 0.05*m) * (0.9 + rng.Float64()*0.2)
		spread := 0.02 + math.Abs(m)*0.05
		weight := math.Exp(-3 * m * m)

		callPx := math.Max(0, Price(Call, f, k, t, RiskFreeRate, iv))
		putPx := math.Max(0, Price(Put, f, k, t, RiskFreeRate, iv))

		row := Contract{
			Strike:     k,
			Expiry:     t,
			ImpliedVol: iv,
			Moneyness:  m,
			ATM:        i == 0,
			Call: Quote{
				Price:        callPx,
				Bid:          math.Max(0, callPx*(1-spread)),
				Ask:          callPx * (1 + spread),
				Volume:       int(math.Floor(50 + weight*2000*rng.Float64())),
				OpenInterest: int(math.Floor(500 + weight*float64(futOI)*0.3*(0.5+rng.Float64()))),
				ITM:          k < f,
				Greeks:       ComputeGreeks(Call, f, k, t, RiskFreeRate, iv),
			},
			Put: Quote{
				Price:        putPx,
				Bid:          math.Max(0, putPx*(1-spread)),
				Ask:          putPx * (1 + spread),
				Volume:       int(math.Floor(40 + weight*1800*rng.Float64())),
				OpenInterest: int(math.Floor(400 + weight*float64(futOI)*0.25*(0.5+rng.Float64()))),
				ITM:          k > f,
				Greeks:       ComputeGreeks(Put, f, k, t, RiskFreeRate, iv),
			},
		}
		chain.Contracts = append(chain.Contracts, row)
	}
	return chain, nil
}

func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
