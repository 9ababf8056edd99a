package mecgame

import (
	"os"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one serialized trace record, stamped with the simulation time
// of the timeslot it was taken in
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// TraceManager gathers a record of every best response iteration of every
// timeslot's game.  By testing its InUse flag we can inhibit gathering when
// we don't want it while leaving the calls to its methods in place.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// all trace records for this experiment, indexed by timeslot
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record under the timeslot given
func (tm *TraceManager) AddTrace(vrt vrtime.Time, round int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[round] = append(tm.Traces[round], trace)
}

// Len is the number of trace records stored
func (tm *TraceManager) Len() int {
	n := 0
	for _, traces := range tm.Traces {
		n += len(traces)
	}
	return n
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written when the manager is not in use.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	bytes, err := marshalByExt(filename, *tm)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(filename, bytes, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// GameTrace records one iteration of the offloading/pricing game
type GameTrace struct {
	Round   int       // timeslot the game belongs to
	Iter    int       // iteration within the game
	Offload []float64 // users' best response offloading
	Prices  []float64 // servers' best response prices
}

func (gt *GameTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*gt)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddGameTrace creates a record of one game iteration and stores it
func AddGameTrace(tm *TraceManager, vrt vrtime.Time, round, iter int, b, prices []float64) {
	if !tm.Active() {
		return
	}
	gt := &GameTrace{Round: round, Iter: iter, Offload: b, Prices: prices}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: "game", TraceStr: gt.Serialize()}
	tm.AddTrace(vrt, round, trcInst)
}
