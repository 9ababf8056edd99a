package mecgame

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iti/evt/vrtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func twoRoundHistory() *History {
	hist := CreateHistory(2, 2, []float64{0.5, 0.5}, 2)
	hist.Append(RoundRecord{
		Round:         1,
		Offload:       []float64{10, 20},
		BytesToServer: []float64{30, 0},
		Prices:        []float64{0.6, 1e-5},
		Rs:            []float64{1, 0},
		Probabilities: [][]float64{{0.8, 0.2}, {0.7, 0.3}},
	})
	hist.Append(RoundRecord{
		Round:         2,
		Offload:       []float64{15, 25},
		BytesToServer: []float64{15, 25},
		Prices:        []float64{0.7, 0.8},
		Rs:            []float64{0.4, 0.6},
		Probabilities: [][]float64{{0.85, 0.15}, {0.6, 0.4}},
	})
	return hist
}

func TestHistorySeries(t *testing.T) {
	hist := twoRoundHistory()
	require.Equal(t, 2, hist.Len())
	assert.Equal(t, 2, hist.Last().Round)

	assert.Equal(t, [][]float64{{10, 20}, {15, 25}}, hist.OffloadSeries())
	assert.Equal(t, [][]float64{{30, 0}, {15, 25}}, hist.BytesSeries())
	assert.Equal(t, [][]float64{{0.5, 0.5}, {0.6, 1e-5}, {0.7, 0.8}}, hist.PriceSeries())
	assert.Equal(t, [][]float64{{1, 0}, {0.4, 0.6}}, hist.RsSeries())
	assert.Equal(t, [][]float64{{0.5, 0.5}, {0.7, 0.3}, {0.6, 0.4}}, hist.ProbabilitySeries(1))

	// series are copies, the records stay as they were
	series := hist.OffloadSeries()
	series[0][0] = -1
	assert.Equal(t, 10.0, hist.Rounds[0].Offload[0])
}

func TestHistoryEmpty(t *testing.T) {
	hist := CreateHistory(3, 1, []float64{0.5, 0.5, 0.5}, 0)
	assert.Nil(t, hist.Last())
	assert.Empty(t, hist.WelfareSeries())
	assert.Equal(t, [][]float64{{0.5, 0.5, 0.5}}, hist.PriceSeries())
}

func TestHistoryWriteToFile(t *testing.T) {
	hist := twoRoundHistory()
	dir := t.TempDir()

	filename := filepath.Join(dir, "history.yaml")
	require.NoError(t, hist.WriteToFile(filename))
	bytes, err := os.ReadFile(filename)
	require.NoError(t, err)

	back := History{}
	require.NoError(t, yaml.Unmarshal(bytes, &back))
	assert.Equal(t, hist.OffloadSeries(), back.OffloadSeries())
	assert.Equal(t, hist.PriceSeries(), back.PriceSeries())
	assert.Equal(t, hist.ProbabilitySeries(0), back.ProbabilitySeries(0))

	require.NoError(t, hist.WriteToFile(filepath.Join(dir, "history.json")))
	assert.Error(t, hist.WriteToFile(filepath.Join(dir, "history.csv")))
}

func TestTraceManagerInactive(t *testing.T) {
	tm := CreateTraceManager("off", false)
	AddGameTrace(tm, vrtime.SecondsToTime(1.0), 1, 1, []float64{1}, []float64{2})
	assert.Zero(t, tm.Len())

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml"))
	require.NoError(t, err)
	assert.False(t, written)

	var nilMgr *TraceManager
	assert.False(t, nilMgr.Active())
	AddGameTrace(nilMgr, vrtime.SecondsToTime(1.0), 1, 1, nil, nil)
}

func TestTraceManagerRecords(t *testing.T) {
	tm := CreateTraceManager("on", true)
	AddGameTrace(tm, vrtime.SecondsToTime(2.0), 3, 1, []float64{10, 10}, []float64{0.6})
	AddGameTrace(tm, vrtime.SecondsToTime(2.0), 3, 2, []float64{10, 10}, []float64{0.6})
	require.Equal(t, 2, tm.Len())

	inst := tm.Traces[3][1]
	assert.NotEmpty(t, inst.TraceTime)
	assert.Equal(t, "game", inst.TraceType)

	gt := GameTrace{}
	require.NoError(t, yaml.Unmarshal([]byte(inst.TraceStr), &gt))
	assert.Equal(t, GameTrace{Round: 3, Iter: 2, Offload: []float64{10, 10}, Prices: []float64{0.6}}, gt)

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "trace.json"))
	require.NoError(t, err)
	assert.True(t, written)
}
