package mecgame

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func denseFromRows(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for idx, row := range rows {
		m.SetRow(idx, row)
	}
	return m
}

// requireOutcome checks that a run either ended with every user sure, or
// stopped at the round cap
func requireOutcome(t *testing.T, pd *ParamDesc, res *Result, err error) {
	t.Helper()
	require.NotNil(t, res)
	if err != nil {
		require.True(t, errors.Is(err, ErrSelectionNotConverged), "unexpected error %v", err)
		assert.False(t, res.Converged)
		assert.Equal(t, pd.MaxRounds, res.Rounds)
		return
	}
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Rounds, pd.MaxRounds)
}

func TestRunDeterministic(t *testing.T) {
	pd := testParams()

	res1, err1 := RunSimulation(pd)
	requireOutcome(t, pd, res1, err1)
	res2, err2 := RunSimulation(pd)
	requireOutcome(t, pd, res2, err2)

	assert.Equal(t, err1 == nil, err2 == nil)
	assert.Equal(t, res1.Rounds, res2.Rounds)
	assert.Equal(t, res1.History.Rounds, res2.History.Rounds)
	assert.Equal(t, pd.Seed, res1.Seed)
}

func TestRunHistoryInvariants(t *testing.T) {
	pd := testParams()
	res, err := RunSimulation(pd)
	requireOutcome(t, pd, res, err)

	hist := res.History
	require.Equal(t, res.Rounds, hist.Len())
	assert.Equal(t, fill(pd.Servers, pd.InitPrice), hist.InitialPrices)

	var cum float64
	for idx, rec := range hist.Rounds {
		assert.Equal(t, idx+1, rec.Round)
		assert.InDelta(t, float64(idx), rec.Time, 1e-9)
		require.Len(t, rec.Assignment, pd.Users)

		for _, p := range rec.Prices {
			assert.GreaterOrEqual(t, p, pd.PriceMin)
		}
		for _, b := range rec.Offload {
			assert.GreaterOrEqual(t, b, pd.BMin)
			assert.LessOrEqual(t, b, pd.BMax)
		}
		assert.InDelta(t, floats.Sum(rec.Offload), floats.Sum(rec.BytesToServer), 1e-9)

		users := 0
		for _, n := range rec.UsersPerServer {
			users += n
		}
		assert.Equal(t, pd.Users, users)

		for _, row := range rec.Probabilities {
			assert.InDelta(t, 1.0, floats.Sum(row), 1e-9)
		}

		cum += floats.Sum(rec.BytesToServer)
		assert.InDelta(t, 1.0, floats.Sum(rec.Penetration), 1e-9)
		assert.Positive(t, rec.GameIters)
	}
	assert.Positive(t, cum)

	if err == nil {
		assert.True(t, AllUsersSure(denseFromRows(hist.Last().Probabilities)))
	}
}

func TestRunPlaysTimeslots(t *testing.T) {
	pd := testParams()
	res, err := RunSimulation(pd)
	requireOutcome(t, pd, res, err)

	// uniform probabilities over 3 servers are not sure, so a timeslot is played
	require.Positive(t, res.Rounds)
	require.Equal(t, res.Rounds, res.History.Len())
	assert.Zero(t, res.History.Rounds[0].Time)
	assert.InDelta(t, float64(res.Rounds-1), res.History.Last().Time, 1e-9)
}

func TestRunLongRoundCap(t *testing.T) {
	pd := testParams()
	pd.LearningRate = 1e-6
	pd.MaxRounds = 50

	// learning this slowly nobody is sure by the cap, which must be reached in full
	res, err := RunSimulation(pd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelectionNotConverged))
	assert.Equal(t, 50, res.Rounds)
	assert.Equal(t, 50, res.History.Len())
}

func TestStopErr(t *testing.T) {
	sim, err := CreateSimulation(testParams())
	require.NoError(t, err)

	// events ran out before the cap
	sim.round = 3
	err = sim.stopErr()
	assert.True(t, errors.Is(err, errEventLoopStopped))
	assert.False(t, errors.Is(err, ErrSelectionNotConverged))

	sim.round = sim.params.MaxRounds
	assert.True(t, errors.Is(sim.stopErr(), ErrSelectionNotConverged))

	sim.sure = true
	assert.NoError(t, sim.stopErr())

	sim.err = ErrProbabilityDrift
	assert.Equal(t, ErrProbabilityDrift, sim.stopErr())
}

func TestRunSingleServerIsSure(t *testing.T) {
	pd := testParams()
	pd.Servers = 1
	pd.C = []float64{0.25}
	pd.Fs = []float64{0.0275}

	res, err := RunSimulation(pd)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Zero(t, res.Rounds)
	assert.Zero(t, res.History.Len())
}

func TestRunRoundCap(t *testing.T) {
	pd := testParams()

	// one learning step from uniform over 3 servers reaches at most 1/3 + 0.7·2/3 < 0.9
	pd.MaxRounds = 1

	res, err := RunSimulation(pd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelectionNotConverged))
	assert.False(t, errors.Is(err, ErrGameNotConverged))
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1, res.History.Len())
}

func TestRunGameCap(t *testing.T) {
	pd := testParams()
	pd.MaxGameIters = 1

	res, err := RunSimulation(pd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGameNotConverged))
	assert.False(t, errors.Is(err, ErrSelectionNotConverged))
	assert.Zero(t, res.History.Len())
}

func TestRunInvalidParams(t *testing.T) {
	pd := testParams()
	pd.Fs[0] = 1

	_, err := RunSimulation(pd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestRunReferenceExperiment(t *testing.T) {
	pd := CreateParamDesc("reference")
	pd.Seed = 2018

	res, err := RunSimulation(pd)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.True(t, AllUsersSure(denseFromRows(res.History.Last().Probabilities)))
}

func TestRunTrace(t *testing.T) {
	pd := testParams()
	pd.Trace = true
	pd.MaxRounds = 3

	res, _ := RunSimulation(pd)
	require.NotNil(t, res.Trace)
	require.True(t, res.Trace.Active())
	require.Positive(t, res.Rounds)
	require.Positive(t, res.Trace.Len())

	iters := 0
	for _, rec := range res.History.Rounds {
		iters += rec.GameIters
		assert.Len(t, res.Trace.Traces[rec.Round], rec.GameIters)
	}
	assert.Equal(t, iters, res.Trace.Len())

	dir := t.TempDir()
	written, err := res.Trace.WriteToFile(filepath.Join(dir, "trace.yaml"))
	require.NoError(t, err)
	assert.True(t, written)
}

func TestRunReplicas(t *testing.T) {
	pd := testParams()
	pd.Seed = 100

	results, err := RunReplicas(context.Background(), pd, 4, 2)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for idx, res := range results {
		require.NotNil(t, res, "replica %d", idx)
		assert.Equal(t, uint64(100+idx), res.Seed)
		assert.True(t, res.Converged)
		assert.Positive(t, res.Rounds)
		assert.Equal(t, res.Rounds, res.History.Len())
	}

	// each replica matches a standalone run with the same seed
	single := pd.Clone()
	single.Seed = 100
	res, err := RunSimulation(single)
	require.NoError(t, err)
	assert.Equal(t, res.History.Rounds, results[0].History.Rounds)
}

func TestReplicaSeeds(t *testing.T) {
	pd := testParams()
	pd.Seed = 5
	assert.Equal(t, []uint64{5, 6, 7}, ReplicaSeeds(pd, 3))

	pd.Seed = 0
	seeds := ReplicaSeeds(pd, 5)
	require.Len(t, seeds, 5)
	for _, s := range seeds {
		assert.NotZero(t, s)
	}
}

func TestRunReplicasCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunReplicas(ctx, testParams(), 3, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	for _, res := range results {
		assert.Nil(t, res)
	}
}
