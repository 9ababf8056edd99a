package mecgame

// metrics.go computes what a timeslot's equilibrium is worth to the servers
// and users, and the competitiveness score that drives the users' learning.

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// congestionFloor keeps the reciprocal of congestion finite for idle servers
	congestionFloor = 0.001

	// congestionExponent sharpens the penalty as a server nears its capacity
	congestionExponent = 5
)

// BytesToServer sums the offloading of the users on each server
func BytesToServer(assignment []int, b []float64, numServers int) []float64 {
	bytes := make([]float64, numServers)
	for user, srvr := range assignment {
		bytes[srvr] += b[user]
	}
	return bytes
}

// UsersPerServer counts the users on each server
func UsersPerServer(assignment []int, numServers int) []int {
	cnt := make([]int, numServers)
	for _, srvr := range assignment {
		cnt[srvr] += 1
	}
	return cnt
}

// ServerWelfare returns the welfare of each server at the end of a timeslot,
//
//	W_s = (1−f_s)·p_s·B_s − c_s·B_s
func ServerWelfare(prices, bytesToServer, c, fs []float64) []float64 {
	welfare := make([]float64, len(prices))
	for srvr := range prices {
		welfare[srvr] = (1-fs[srvr])*prices[srvr]*bytesToServer[srvr] - c[srvr]*bytesToServer[srvr]
	}
	return welfare
}

// UserUtility returns the utility of each user at the end of a timeslot,
//
//	U_i = k·ln(1 + l·r_i) − a_i·p_{s(i)}·r_i,   r_i = b_i/(B − b_i)
//
// A user that is the only one offloading has an undefined ratio, and NaN
// is returned for it.
func UserUtility(assignment []int, b, prices, a []float64, k, l float64) []float64 {
	total := floats.Sum(b)
	utility := make([]float64, len(b))
	for user, srvr := range assignment {
		ru := b[user] / (total - b[user])
		utility[user] = k*math.Log(1+l*ru) - a[user]*prices[srvr]*ru
	}
	return utility
}

// Competitiveness holds the score of each server and the three quantities it combines
type Competitiveness struct {
	Rs            []float64
	Congestion    []float64
	Penetration   []float64
	RelativePrice []float64
}

// ComputeCompetitiveness scores every server after a timeslot.
//
//   - congestion_s = max((B_s / (bMax·U))^5, 0.001)
//   - penetration_s = Σ_t B_s(t) / Σ_t Σ_j B_j(t), zero when nothing was ever offloaded
//   - relative_price_s = mean_j(p_j(1−f_j)) / (p_s(1−f_s))
//   - Rs_s = relative_price_s · penetration_s / congestion_s
//
// bytesToServer is the current timeslot's load, cumBytes and cumTotal the
// running sums over the history up to and including it.
func ComputeCompetitiveness(bytesToServer, cumBytes []float64, cumTotal float64,
	prices, fs []float64, bMax float64, numUsers int) *Competitiveness {

	numServers := len(prices)
	cmp := &Competitiveness{
		Rs:            make([]float64, numServers),
		Congestion:    make([]float64, numServers),
		Penetration:   make([]float64, numServers),
		RelativePrice: make([]float64, numServers),
	}

	effPrice := make([]float64, numServers)
	for srvr := range prices {
		effPrice[srvr] = prices[srvr] * (1 - fs[srvr])
	}
	meanEffPrice := stat.Mean(effPrice, nil)

	capacity := bMax * float64(numUsers)
	for srvr := 0; srvr < numServers; srvr++ {
		congestion := math.Pow(bytesToServer[srvr]/capacity, congestionExponent)
		if congestion < congestionFloor {
			congestion = congestionFloor
		}
		cmp.Congestion[srvr] = congestion

		if cumTotal != 0 {
			cmp.Penetration[srvr] = cumBytes[srvr] / cumTotal
		}
		cmp.RelativePrice[srvr] = meanEffPrice / effPrice[srvr]
		cmp.Rs[srvr] = cmp.RelativePrice[srvr] * (1 / cmp.Congestion[srvr]) * cmp.Penetration[srvr]
	}
	return cmp
}
