package mecgame

// history.go holds the record of a simulation run, one entry per timeslot.
// Entries are only ever appended; a record is not changed once it is in the history.

import (
	"os"

	"golang.org/x/exp/slices"
)

// RoundRecord is everything observed in one timeslot
type RoundRecord struct {
	Round int `json:"round" yaml:"round"`

	// Time is the simulation time (in seconds) the timeslot was played at
	Time float64 `json:"time" yaml:"time"`

	Assignment     []int     `json:"assignment" yaml:"assignment"`
	UsersPerServer []int     `json:"usersperserver" yaml:"usersperserver"`
	Offload        []float64 `json:"offload" yaml:"offload"`
	BytesToServer  []float64 `json:"bytestoserver" yaml:"bytestoserver"`
	Prices         []float64 `json:"prices" yaml:"prices"`
	Welfare        []float64 `json:"welfare" yaml:"welfare"`
	Utility        []float64 `json:"utility" yaml:"utility"`
	Rs             []float64 `json:"rs" yaml:"rs"`
	Congestion     []float64 `json:"congestion" yaml:"congestion"`
	Penetration    []float64 `json:"penetration" yaml:"penetration"`
	RelativePrice  []float64 `json:"relativeprice" yaml:"relativeprice"`

	// Probabilities are the users' selection probabilities after this timeslot's update
	Probabilities [][]float64 `json:"probabilities" yaml:"probabilities"`

	// GameIters is the number of best response iterations the timeslot's game took
	GameIters int `json:"gameiters" yaml:"gameiters"`
}

// History is the growing record of a run.  Alongside the records it keeps
// running sums of the bytes each server received, so that penetration does
// not rescan the history.
type History struct {
	Servers       int           `json:"servers" yaml:"servers"`
	Users         int           `json:"users" yaml:"users"`
	InitialPrices []float64     `json:"initialprices" yaml:"initialprices"`
	Rounds        []RoundRecord `json:"rounds" yaml:"rounds"`

	cumBytes []float64
	cumTotal float64
}

// CreateHistory is a constructor.  capacity is a hint of how many timeslots
// the run will take.
func CreateHistory(numServers, numUsers int, initialPrices []float64, capacity int) *History {
	hist := new(History)
	hist.Servers = numServers
	hist.Users = numUsers
	hist.InitialPrices = slices.Clone(initialPrices)
	hist.Rounds = make([]RoundRecord, 0, capacity)
	hist.cumBytes = make([]float64, numServers)
	return hist
}

// Len is the number of timeslots recorded
func (hist *History) Len() int {
	return len(hist.Rounds)
}

// Last returns the latest record, or nil for an empty history
func (hist *History) Last() *RoundRecord {
	if len(hist.Rounds) == 0 {
		return nil
	}
	return &hist.Rounds[len(hist.Rounds)-1]
}

// AddBytes folds one timeslot's per-server load into the running sums and
// returns the sums, which include that timeslot
func (hist *History) AddBytes(bytesToServer []float64) ([]float64, float64) {
	for srvr, bytes := range bytesToServer {
		hist.cumBytes[srvr] += bytes
		hist.cumTotal += bytes
	}
	return hist.cumBytes, hist.cumTotal
}

// Append adds a record at the end of the history
func (hist *History) Append(rec RoundRecord) {
	hist.Rounds = append(hist.Rounds, rec)
}

// series gathers one vector per timeslot into a round-major matrix
func (hist *History) series(pick func(*RoundRecord) []float64) [][]float64 {
	out := make([][]float64, len(hist.Rounds))
	for idx := range hist.Rounds {
		out[idx] = slices.Clone(pick(&hist.Rounds[idx]))
	}
	return out
}

// OffloadSeries returns the users' offloading, one row per timeslot
func (hist *History) OffloadSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Offload })
}

// BytesSeries returns the bytes each server received, one row per timeslot
func (hist *History) BytesSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.BytesToServer })
}

// PriceSeries returns the servers' prices, starting with the initial prices
func (hist *History) PriceSeries() [][]float64 {
	return append([][]float64{slices.Clone(hist.InitialPrices)},
		hist.series(func(rec *RoundRecord) []float64 { return rec.Prices })...)
}

func (hist *History) WelfareSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Welfare })
}

func (hist *History) UtilitySeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Utility })
}

func (hist *History) RsSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Rs })
}

func (hist *History) CongestionSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Congestion })
}

func (hist *History) PenetrationSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.Penetration })
}

func (hist *History) RelativePriceSeries() [][]float64 {
	return hist.series(func(rec *RoundRecord) []float64 { return rec.RelativePrice })
}

// ProbabilitySeries returns, for the user given, its selection probabilities
// before the first timeslot (uniform) and after every timeslot
func (hist *History) ProbabilitySeries(user int) [][]float64 {
	out := [][]float64{fill(hist.Servers, 1.0/float64(hist.Servers))}
	for idx := range hist.Rounds {
		out = append(out, slices.Clone(hist.Rounds[idx].Probabilities[user]))
	}
	return out
}

// WriteToFile stores the History struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// NaN entries (see UserUtility) cannot be represented in json; write those
// histories as yaml.
func (hist *History) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *hist)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}
