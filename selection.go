package mecgame

// selection.go holds the learning mechanism through which users come to
// settle on a server.  Each user carries a probability distribution over the
// servers, samples its server from it every timeslot, and moves probability
// towards the sampled server in proportion to how competitive that server
// proved to be.

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// sureThreshold is the probability a user must exceed on some server to be sure of it
	sureThreshold = 0.9

	// rowSumTolerance bounds how far a probability row may drift from one
	rowSumTolerance = 1e-9
)

// InitProbabilities returns the numUsers x numServers matrix in which every
// user picks every server with probability 1/numServers
func InitProbabilities(numUsers, numServers int) *mat.Dense {
	return mat.NewDense(numUsers, numServers, fill(numUsers*numServers, 1.0/float64(numServers)))
}

// SelectServers draws, independently for each user, a server from that
// user's row of probs.  All randomness comes from src, so the same source
// state gives the same assignment.
func SelectServers(probs *mat.Dense, src rand.Source) []int {
	numUsers, _ := probs.Dims()
	assignment := make([]int, numUsers)
	for user := 0; user < numUsers; user++ {
		assignment[user] = selectServer(probs.RawRowView(user), src)
	}
	return assignment
}

// selectServer draws one index from the categorical distribution of row
func selectServer(row []float64, src rand.Source) int {
	cat := distuv.NewCategorical(row, src)
	return int(cat.Rand())
}

// AllUsersSure reports whether every user has some server it selects with
// probability strictly greater than 0.9
func AllUsersSure(probs *mat.Dense) bool {
	numUsers, _ := probs.Dims()
	for user := 0; user < numUsers; user++ {
		if !(floats.Max(probs.RawRowView(user)) > sureThreshold) {
			return false
		}
	}
	return true
}

// Rewards normalizes the competitiveness scores so they sum to one.  When
// every score is zero every reward is zero.
func Rewards(rs []float64) []float64 {
	reward := make([]float64, len(rs))
	total := floats.Sum(rs)
	if total == 0 {
		return reward
	}
	floats.ScaleTo(reward, 1/total, rs)
	return reward
}

// UpdateProbabilities applies one learning step to probs.  For user
// i that selected server s, with r_s its normalized reward and β the learning rate,
//
//	P_i,s ← P_i,s + β·r_s·(1 − P_i,s)
//	P_i,c ← P_i,c − β·r_s·P_i,c        c ≠ s
//
// The step is taken on a copy, which replaces probs only when every row of
// it is a distribution.  Otherwise probs is left as it was and the error
// returned wraps ErrProbabilityDrift.
func UpdateProbabilities(rs []float64, probs *mat.Dense, assignment []int, learningRate float64) error {
	reward := Rewards(rs)
	next := mat.DenseCopyOf(probs)

	for user, srvr := range assignment {
		row := next.RawRowView(user)
		step := learningRate * reward[srvr]
		for col := range row {
			if col == srvr {
				row[col] += step * (1 - row[col])
			} else {
				row[col] -= step * row[col]
			}
		}
	}
	if err := CheckProbabilities(next); err != nil {
		return err
	}
	probs.Copy(next)
	return nil
}

// CheckProbabilities verifies that every row of probs is non-negative and sums to one
func CheckProbabilities(probs *mat.Dense) error {
	numUsers, _ := probs.Dims()
	for user := 0; user < numUsers; user++ {
		row := probs.RawRowView(user)
		sum := floats.Sum(row)
		if !(math.Abs(sum-1) <= rowSumTolerance) {
			return fmt.Errorf("%w: user %d row sums to %.12g", ErrProbabilityDrift, user, sum)
		}
		if floats.Min(row) < 0 {
			return fmt.Errorf("%w: user %d has a negative probability %g", ErrProbabilityDrift, user, floats.Min(row))
		}
	}
	return nil
}
