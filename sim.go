package mecgame

// sim.go holds the outer loop of the simulation.  Every timeslot is an event:
// users pick servers, the game of the timeslot is played to equilibrium,
// the equilibrium is scored, and users learn from the scores.  The handler
// schedules the next timeslot one second of simulation time later, until
// every user is sure of its server.

import (
	"fmt"
	"math"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// timeslotLength is the simulation time between consecutive timeslots
const timeslotLength = 1.0

// historyCapacityHint bounds the preallocation of the history
const historyCapacityHint = 1024

// Simulation holds the state of one run.  Nothing in it is shared with any other run.
type Simulation struct {
	params *ParamDesc
	seed   uint64
	src    rand.Source

	probs  *mat.Dense // users' selection probabilities, U x S
	prices []float64  // servers' latest prices

	hist     *History
	traceMgr *TraceManager

	round int
	sure  bool
	err   error
}

// Result is what a run produced
type Result struct {
	Seed      uint64
	Rounds    int
	Converged bool
	Elapsed   time.Duration
	History   *History
	Trace     *TraceManager
}

// CreateSimulation is a constructor.  It validates the parameters, seeds the
// random source and builds the initial state: uniform selection
// probabilities and every price at pd.InitPrice.  When pd.Seed is zero a seed
// is drawn from a random stream named after the experiment.
func CreateSimulation(pd *ParamDesc) (*Simulation, error) {
	if err := pd.Validate(); err != nil {
		return nil, err
	}

	sim := new(Simulation)
	sim.params = pd.Clone()
	sim.seed = pd.Seed
	if sim.seed == 0 {
		sim.seed = drawSeed(rngstream.New(pd.Name))
	}
	sim.src = rand.NewSource(sim.seed)

	sim.probs = InitProbabilities(pd.Users, pd.Servers)
	sim.prices = fill(pd.Servers, pd.InitPrice)

	capacity := pd.MaxRounds
	if capacity > historyCapacityHint {
		capacity = historyCapacityHint
	}
	sim.hist = CreateHistory(pd.Servers, pd.Users, sim.prices, capacity)
	sim.traceMgr = CreateTraceManager(pd.Name, pd.Trace)
	return sim, nil
}

// drawSeed takes a non-zero seed from a random stream
func drawSeed(rng *rngstream.RngStream) uint64 {
	return uint64(rng.RandInt(1, math.MaxInt32))
}

// Seed is the seed of the run's server selection draws
func (sim *Simulation) Seed() uint64 {
	return sim.seed
}

// Probabilities gives the users' current selection probabilities
func (sim *Simulation) Probabilities() *mat.Dense {
	return sim.probs
}

// Prices gives the servers' latest prices
func (sim *Simulation) Prices() []float64 {
	return sim.prices
}

// History gives the record of the timeslots played so far
func (sim *Simulation) History() *History {
	return sim.hist
}

// Run plays timeslots until every user is sure of its server.  If a
// timeslot fails, or pd.MaxRounds timeslots pass with some user still
// unsure, the error is returned alongside what was recorded up to then;
// the latter case wraps ErrSelectionNotConverged.
func (sim *Simulation) Run() (*Result, error) {
	start := time.Now()
	klog.InfoS("simulation starting", "name", sim.params.Name, "users", sim.params.Users,
		"servers", sim.params.Servers, "seed", sim.seed)

	sim.sure = AllUsersSure(sim.probs)
	if !sim.sure {
		evtMgr := evtm.New()
		evtMgr.Schedule(sim, nil, playTimeslot, vrtime.SecondsToTime(0.0))

		// timeslot t is played at t-1 seconds, so the last one allowed falls inside the limit
		evtMgr.Run(float64(sim.params.MaxRounds) * timeslotLength)
	}

	res := &Result{
		Seed:      sim.seed,
		Rounds:    sim.round,
		Converged: sim.sure,
		Elapsed:   time.Since(start),
		History:   sim.hist,
		Trace:     sim.traceMgr,
	}

	sim.err = sim.stopErr()
	if sim.err != nil {
		klog.InfoS("simulation stopped", "name", sim.params.Name, "rounds", sim.round, "err", sim.err)
		return res, sim.err
	}
	klog.InfoS("simulation converged", "name", sim.params.Name, "rounds", sim.round, "elapsed", res.Elapsed)
	return res, nil
}

// stopErr gives the error a finished run reports: the error of a failed
// timeslot, a round cap reached with users unsure, or an event loop that
// stopped before either
func (sim *Simulation) stopErr() error {
	switch {
	case sim.err != nil:
		return sim.err
	case sim.sure:
		return nil
	case sim.round >= sim.params.MaxRounds:
		return fmt.Errorf("%w: users unsure after %d timeslots", ErrSelectionNotConverged, sim.round)
	}
	return fmt.Errorf("%w: after %d of %d timeslots", errEventLoopStopped, sim.round, sim.params.MaxRounds)
}

// playTimeslot is the event handler of a timeslot.  It plays the timeslot and
// schedules the next one, unless users are sure, the round cap is reached,
// or the timeslot failed.
func playTimeslot(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulation)

	if err := sim.Step(evtMgr.CurrentTime()); err != nil {
		sim.err = err
		return nil
	}
	if sim.sure || sim.round >= sim.params.MaxRounds {
		return nil
	}
	evtMgr.Schedule(sim, nil, playTimeslot, vrtime.SecondsToTime(timeslotLength))
	return nil
}

// Step plays one timeslot at simulation time vrt and records it
func (sim *Simulation) Step(vrt vrtime.Time) error {
	pd := sim.params
	sim.round += 1
	round := sim.round

	// each user selects the server to which it will offload
	assignment := SelectServers(sim.probs, sim.src)

	// users and servers play to equilibrium
	observe := func(iter int, b, prices []float64) {
		AddGameTrace(sim.traceMgr, vrt, round, iter, b, prices)
	}
	outcome, err := PlayGame(pd, assignment, observe)
	if err != nil {
		return fmt.Errorf("timeslot %d: %w", round, err)
	}
	sim.prices = outcome.Prices

	bytesToServer := BytesToServer(assignment, outcome.Offload, pd.Servers)
	cumBytes, cumTotal := sim.hist.AddBytes(bytesToServer)
	cmp := ComputeCompetitiveness(bytesToServer, cumBytes, cumTotal,
		outcome.Prices, pd.Fs, pd.BMax, pd.Users)

	if err := UpdateProbabilities(cmp.Rs, sim.probs, assignment, pd.LearningRate); err != nil {
		return fmt.Errorf("timeslot %d: %w", round, err)
	}
	sim.sure = AllUsersSure(sim.probs)

	sim.hist.Append(RoundRecord{
		Round:          round,
		Time:           vrt.Seconds(),
		Assignment:     assignment,
		UsersPerServer: UsersPerServer(assignment, pd.Servers),
		Offload:        outcome.Offload,
		BytesToServer:  bytesToServer,
		Prices:         outcome.Prices,
		Welfare:        ServerWelfare(outcome.Prices, bytesToServer, pd.C, pd.Fs),
		Utility:        UserUtility(assignment, outcome.Offload, outcome.Prices, pd.A, pd.K, pd.L),
		Rs:             cmp.Rs,
		Congestion:     cmp.Congestion,
		Penetration:    cmp.Penetration,
		RelativePrice:  cmp.RelativePrice,
		Probabilities:  snapshotRows(sim.probs),
		GameIters:      outcome.Iters,
	})

	klog.V(2).InfoS("timeslot played", "round", round, "gameIters", outcome.Iters,
		"usersPerServer", sim.hist.Last().UsersPerServer, "sure", sim.sure)
	return nil
}

// snapshotRows copies the rows of m, so later updates do not reach the copy
func snapshotRows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for idx := 0; idx < rows; idx++ {
		out[idx] = mat.Row(nil, idx, m)
	}
	return out
}

// RunSimulation builds a simulation from pd and runs it
func RunSimulation(pd *ParamDesc) (*Result, error) {
	sim, err := CreateSimulation(pd)
	if err != nil {
		return nil, err
	}
	return sim.Run()
}
