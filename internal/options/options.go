// Package options values European-style option contracts: closed-form
// Black-Scholes pricing, a Monte-Carlo estimate of expected value, and
// the Kelly betting fraction for a mispriced contract.
//
// The closed-form price is also valid for American calls on a
// non-dividend-paying stock; American puts are not handled.
package options

import (
	"errors"
	"math"
	"runtime"
	"sync"
	"time"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/openfolio/folio/pkg/models"
)

// DefaultSimulations is the Monte-Carlo sample count used when the
// caller does not specify one.
const DefaultSimulations = 10000

// ErrNoMarketPrice is returned by KellyRatio when the contract carries
// no observed market price to compare against.
var ErrNoMarketPrice = errors.New("market price is required for the Kelly fraction")

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Price returns the Black-Scholes value of the contract.
func Price(c models.OptionContract) float64 {
	t := float64(c.Maturity)
	d1 := d1(c)
	d2 := d2(d1, c)
	switch c.Type {
	case models.Put:
		return c.Strike*math.Exp(-c.RiskFree*t)*stdNormal.CDF(-d2) -
			c.Underlying*stdNormal.CDF(-d1)
	default:
		return c.Underlying*stdNormal.CDF(d1) -
			c.Strike*math.Exp(-c.RiskFree*t)*stdNormal.CDF(d2)
	}
}

func d1(c models.OptionContract) float64 {
	t := float64(c.Maturity)
	return (math.Log(c.Underlying/c.Strike) + (c.RiskFree+c.Volatility*c.Volatility/2)*t) /
		(c.Volatility * math.Sqrt(t))
}

func d2(d1 float64, c models.OptionContract) float64 {
	return d1 - c.Volatility*math.Sqrt(float64(c.Maturity))
}

// KellyRatio returns the fraction of the bankroll that maximizes
// expected log growth when betting on the gap between the theoretical
// and observed price of the contract.
func KellyRatio(c models.OptionContract) (float64, error) {
	if c.MarketPrice == nil {
		return 0, ErrNoMarketPrice
	}
	pWin := stdNormal.CDF(d2(d1(c), c))
	w := (Price(c)/pWin - *c.MarketPrice) / *c.MarketPrice
	return (pWin*w - (1 - pWin)) / w, nil
}

// MonteCarlo estimates the contract's expected discounted payoff from n
// geometric-Brownian-motion terminal prices. Simulations fan out across
// workers and fan back in over a channel; seed fixes the random source
// for reproducible runs (0 seeds from the clock).
func MonteCarlo(c models.OptionContract, n int, seed uint64) float64 {
	if n <= 0 {
		n = DefaultSimulations
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}

	partials := make(chan float64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		count := n / workers
		if w < n%workers {
			count++
		}
		wg.Add(1)
		go func(workerSeed uint64, count int) {
			defer wg.Done()
			normal := distuv.Normal{
				Mu:    0,
				Sigma: 1,
				Src:   xrand.NewSource(workerSeed),
			}
			var sum float64
			for i := 0; i < count; i++ {
				sum += payoff(c, terminalPrice(c, normal.Rand()))
			}
			partials <- sum
		}(seed+uint64(w), count)
	}

	wg.Wait()
	close(partials)

	var total float64
	for p := range partials {
		total += p
	}
	return total / float64(n)
}

// terminalPrice projects the underlying forward under GBM with the
// given standard-normal draw.
func terminalPrice(c models.OptionContract, z float64) float64 {
	t := float64(c.Maturity)
	return c.Underlying * math.Exp((c.RiskFree-c.Volatility*c.Volatility/2)*t+
		c.Volatility*math.Sqrt(t)*z)
}

// payoff discounts the exercise value of the contract at expiry.
func payoff(c models.OptionContract, terminal float64) float64 {
	discount := math.Pow(1+c.RiskFree, float64(c.Maturity))
	switch c.Type {
	case models.Put:
		if terminal >= c.Strike {
			return 0
		}
		return (c.Strike - terminal) / discount
	default:
		if terminal <= c.Strike {
			return 0
		}
		return (terminal - c.Strike) / discount
	}
}
