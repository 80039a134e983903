// Package options prices synthetic option chains off the simulated forward
// curve. Everything here is a pure function of its inputs plus an injected
// random source used only for smile and liquidity jitter.
package options

import "math"

// Kind is call or put.
type Kind int

const (
	Call Kind = iota
	Put
)

func (k Kind) String() string {
	if k == Put {
		return "put"
	}
	return "call"
}

// MinTime floors time-to-expiry (years) in Greek computations.
const MinTime = 0.001

// Abramowitz-Stegun 7.1.26 coefficients.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// NormCDF is the standard normal CDF via the Abramowitz-Stegun rational
// approximation (absolute error below 7.5e-8).
func NormCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	z := math.Abs(x) / math.Sqrt2
	t := 1.0 / (1.0 + asP*z)
	y := 1.0 - (((((asA5*t+asA4)*t)+asA3)*t+asA2)*t+asA1)*t*math.Exp(-z*z)
	return 0.5 * (1.0 + sign*y)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func d1d2(s, k, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Price returns the Black-Scholes premium. With no time left it returns
// intrinsic value.
func Price(kind Kind, s, k, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		if kind == Put {
			return math.Max(k-s, 0)
		}
		return math.Max(s-k, 0)
	}
	d1, d2 := d1d2(s, k, t, r, sigma)
	disc := k * math.Exp(-r*t)
	if kind == Put {
		return disc*NormCDF(-d2) - s*NormCDF(-d1)
	}
	return s*NormCDF(d1) - disc*NormCDF(d2)
}

// Greeks holds sensitivities. Theta is per calendar day, vega per vol point
// and rho per 1% rate move.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// ComputeGreeks returns Black-Scholes Greeks, flooring t at MinTime.
func ComputeGreeks(kind Kind, s, k, t, r, sigma float64) Greeks {
	if t < MinTime {
		t = MinTime
	}
	sqrtT := math.Sqrt(t)
	d1, d2 := d1d2(s, k, t, r, sigma)
	nd1 := NormPDF(d1)
	disc := math.Exp(-r * t)

	g := Greeks{
		Gamma: nd1 / (s * sigma * sqrtT),
		Vega:  s * nd1 * sqrtT / 100,
	}
	decay := -s * nd1 * sigma / (2 * sqrtT)
	if kind == Put {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + r*k*disc*NormCDF(-d2)) / 365
		g.Rho = -k * t * disc * NormCDF(-d2) / 100
	} else {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - r*k*disc*NormCDF(d2)) / 365
		g.Rho = k * t * disc * NormCDF(d2) / 100
	}
	return g
}

// StrikeInterval picks strike spacing for a given underlying price.
func StrikeInterval(price float64) float64 {
	switch p := math.Abs(price); {
	case p < 5:
		return 0.25
	case p < 20:
		return 0.5
	case p < 50:
		return 1.0
	case p < 100:
		return 2.5
	case p < 500:
		return 5.0
	default:
		return 10.0
	}
}
