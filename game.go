package mecgame

// game.go holds the two-level game played inside one timeslot.  With the
// assignment of users to servers held fixed, users choose how much data to
// offload given the servers' prices, and servers choose prices given the
// users' offloading.  The alternation is repeated until neither side moves
// by more than its tolerance, which is the Nash equilibrium of the timeslot.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// unselectedDenominator replaces the zero denominator of a server no user
// selected, so that its best response price is 0/0.1 = 0
const unselectedDenominator = 0.1

// OffloadingGame returns every user's best response offload volume given
// the offloading of the previous iteration and the servers' prices.
//
// With B_{-i} the offloading of every other user (over all servers),
//
//	b_i = (B_{-i}/l) · (k·l/(a_i·p_{s(i)}) − 1)
//
// clamped into [bMin, bMax].  A zero B_{-i} or price is not guarded; the
// resulting NaN or Inf is returned to the caller.
func OffloadingGame(assignment []int, bOld, prices, a []float64,
	k, l, bMin, bMax float64) []float64 {

	total := floats.Sum(bOld)
	b := make([]float64, len(bOld))
	for user, srvr := range assignment {
		others := total - bOld[user]
		br := (others / l) * (k*l/(a[user]*prices[srvr]) - 1)

		// limit result inside [bMin, bMax], a NaN passes through
		b[user] = math.Max(bMin, math.Min(bMax, br))
	}
	return b
}

// PricingGame returns every server's best response price given the users'
// offloading.  The number of servers is len(c).
//
// With B_{-u} the offloading of every user other than u and U_s the users on server s,
//
//	p_s = sqrt( c_s·k·l·Σ_{u∈U_s} B_{-u}/a_u  /  ((1−f_s)·Σ_{u∈U_s} B_{-u}) )
//
// A server nobody selected gets the price floor priceMin.  A negative price
// is a parameter error and is returned wrapped in ErrNegativePrice.
func PricingGame(assignment []int, b, a, c, fs []float64,
	k, l, priceMin float64) ([]float64, error) {

	numServers := len(c)
	total := floats.Sum(b)

	numeratorSum := make([]float64, numServers)
	denominatorSum := make([]float64, numServers)
	for user, srvr := range assignment {
		others := total - b[user]
		numeratorSum[srvr] += others / a[user]
		denominatorSum[srvr] += others
	}

	prices := make([]float64, numServers)
	for srvr := 0; srvr < numServers; srvr++ {
		numerator := c[srvr] * k * l * numeratorSum[srvr]
		denominator := (1 - fs[srvr]) * denominatorSum[srvr]
		if denominator == 0 {
			denominator = unselectedDenominator
		}
		prices[srvr] = math.Sqrt(numerator / denominator)
	}

	for srvr, price := range prices {
		if price < 0 {
			return nil, fmt.Errorf("%w: server %d priced at %g", ErrNegativePrice, srvr, price)
		}
		if price == 0 {
			prices[srvr] = priceMin
		}
	}
	return prices, nil
}

// GameConverged reports whether every user's offloading moved by less than
// e1 and every server's price by less than e2 since the previous iteration
func GameConverged(b, bOld, prices, pricesOld []float64, e1, e2 float64) bool {
	for idx := range b {
		if !(math.Abs(b[idx]-bOld[idx]) < e1) {
			return false
		}
	}
	for idx := range prices {
		if !(math.Abs(prices[idx]-pricesOld[idx]) < e2) {
			return false
		}
	}
	return true
}

// GameOutcome is the equilibrium reached by PlayGame
type GameOutcome struct {
	Offload []float64 // b at equilibrium, by user
	Prices  []float64 // prices at equilibrium, by server
	Iters   int       // number of best response iterations taken
}

// GameObserver is told about every iteration of the game.  A nil observer is
// allowed.
type GameObserver func(iter int, b, prices []float64)

// PlayGame alternates OffloadingGame and PricingGame for a fixed assignment
// until GameConverged holds.  Both the previous offloading and the previous
// prices start as vectors of ones, so the first convergence test cannot pass
// trivially.  If pd.MaxGameIters iterations pass without convergence the
// error returned wraps ErrGameNotConverged.
func PlayGame(pd *ParamDesc, assignment []int, observe GameObserver) (*GameOutcome, error) {
	bOld := fill(pd.Users, 1.0)
	pricesOld := fill(pd.Servers, 1.0)

	for iter := 1; iter <= pd.MaxGameIters; iter++ {
		// users respond to last iteration's prices
		b := OffloadingGame(assignment, bOld, pricesOld, pd.A, pd.K, pd.L, pd.BMin, pd.BMax)

		// servers respond to the offloading just chosen
		prices, err := PricingGame(assignment, b, pd.A, pd.C, pd.Fs, pd.K, pd.L, pd.PriceMin)
		if err != nil {
			return nil, err
		}

		if observe != nil {
			observe(iter, b, prices)
		}
		if klog.V(4).Enabled() {
			klog.V(4).InfoS("game iteration", "iter", iter, "offload", floats.Sum(b), "prices", prices)
		}

		if GameConverged(b, bOld, prices, pricesOld, pd.E1, pd.E2) {
			return &GameOutcome{Offload: b, Prices: prices, Iters: iter}, nil
		}
		bOld, pricesOld = b, prices
	}
	return nil, fmt.Errorf("%w: no equilibrium after %d iterations", ErrGameNotConverged, pd.MaxGameIters)
}
