package mecgame

// params.go holds the serializable description of a simulation experiment:
// the number of users and servers, the shape of the users' satisfaction
// function, the servers' costs and discounts, and the tolerances and caps
// that govern the two nested loops.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A ParamDesc struct holds every model parameter of one experiment.
// Vector parameters are indexed by user (A) or by server (C, Fs).
type ParamDesc struct {
	// Name is an identifier for the experiment, also used to name its random stream
	Name string `json:"name" yaml:"name"`

	Servers int `json:"servers" yaml:"servers"` // S
	Users   int `json:"users" yaml:"users"`     // U

	// error tolerances for the offloading (E1) and pricing (E2) convergence test
	E1 float64 `json:"e1" yaml:"e1"`
	E2 float64 `json:"e2" yaml:"e2"`

	// parameters of the users' satisfaction function k*ln(1+l*x)
	K float64 `json:"k" yaml:"k"`
	L float64 `json:"l" yaml:"l"`

	// A is each user's sensitivity to the price it pays
	A []float64 `json:"a" yaml:"a"`

	// bounds on the volume of data a user is willing to offload
	BMin float64 `json:"bmin" yaml:"bmin"`
	BMax float64 `json:"bmax" yaml:"bmax"`

	// C is each server's unit computing cost, Fs its discount
	C  []float64 `json:"c" yaml:"c"`
	Fs []float64 `json:"fs" yaml:"fs"`

	// PriceMin is the floor a server's price is raised to
	PriceMin float64 `json:"pricemin" yaml:"pricemin"`

	LearningRate float64 `json:"learningrate" yaml:"learningrate"`

	// InitPrice is every server's price before the first timeslot
	InitPrice float64 `json:"initprice" yaml:"initprice"`

	// caps on the inner (offloading/pricing) and outer (selection) loops
	MaxGameIters int `json:"maxgameiters" yaml:"maxgameiters"`
	MaxRounds    int `json:"maxrounds" yaml:"maxrounds"`

	// Seed for the server selection draws.  Zero means a seed is drawn from
	// the experiment's random stream
	Seed uint64 `json:"seed" yaml:"seed"`

	// Trace turns on recording of every inner game iteration
	Trace bool `json:"trace" yaml:"trace"`
}

// CreateParamDesc is a constructor.  The values are those of the reference
// experiment: 5 servers, 100 users with identical price sensitivity, servers with
// identical cost and discount.
func CreateParamDesc(name string) *ParamDesc {
	pd := new(ParamDesc)
	pd.Name = name
	pd.Servers = 5
	pd.Users = 100
	pd.E1 = 1e-2
	pd.E2 = 1e-2
	pd.K = 1000
	pd.L = 100
	pd.BMin = 10
	pd.BMax = 200
	pd.PriceMin = 1e-5
	pd.LearningRate = 0.7
	pd.InitPrice = 0.5
	pd.MaxGameIters = 10000
	pd.MaxRounds = 100000

	pd.A = fill(pd.Users, 6.4e4)
	pd.C = fill(pd.Servers, 0.25)
	pd.Fs = fill(pd.Servers, 0.0275)
	return pd
}

// fill returns a vector of length n holding v everywhere
func fill(n int, v float64) []float64 {
	vec := make([]float64, n)
	for idx := range vec {
		vec[idx] = v
	}
	return vec
}

// Clone returns a deep copy, so that independent runs never share vectors
func (pd *ParamDesc) Clone() *ParamDesc {
	cp := *pd
	cp.A = slices.Clone(pd.A)
	cp.C = slices.Clone(pd.C)
	cp.Fs = slices.Clone(pd.Fs)
	return &cp
}

// Validate checks that the description can describe a model.  The error
// returned, if any, wraps ErrInvalidParams.
func (pd *ParamDesc) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}

	if pd.Servers < 1 {
		return invalid("servers %d < 1", pd.Servers)
	}
	if pd.Users < 1 {
		return invalid("users %d < 1", pd.Users)
	}
	if len(pd.A) != pd.Users {
		return invalid("len(a) %d != users %d", len(pd.A), pd.Users)
	}
	if len(pd.C) != pd.Servers {
		return invalid("len(c) %d != servers %d", len(pd.C), pd.Servers)
	}
	if len(pd.Fs) != pd.Servers {
		return invalid("len(fs) %d != servers %d", len(pd.Fs), pd.Servers)
	}
	for idx, a := range pd.A {
		if !(a > 0) {
			return invalid("a[%d] = %g must be > 0", idx, a)
		}
	}
	for idx := 0; idx < pd.Servers; idx++ {
		if !(pd.C[idx] >= 0) {
			return invalid("c[%d] = %g must be >= 0", idx, pd.C[idx])
		}
		if !(pd.Fs[idx] >= 0 && pd.Fs[idx] < 1) {
			return invalid("fs[%d] = %g must be in [0,1)", idx, pd.Fs[idx])
		}
	}
	if !(pd.E1 >= 0) || !(pd.E2 >= 0) {
		return invalid("tolerances e1 %g, e2 %g must be >= 0", pd.E1, pd.E2)
	}
	if !(pd.BMin >= 0) || !(pd.BMax >= pd.BMin) {
		return invalid("offload bounds [%g, %g]", pd.BMin, pd.BMax)
	}
	if !(pd.BMax > 0) {
		return invalid("bmax %g must be > 0", pd.BMax)
	}
	if !(pd.K > 0) || !(pd.L > 0) {
		return invalid("k %g and l %g must be > 0", pd.K, pd.L)
	}
	if !(pd.PriceMin > 0) {
		return invalid("pricemin %g must be > 0", pd.PriceMin)
	}
	if !(pd.InitPrice >= pd.PriceMin) {
		return invalid("initprice %g below pricemin %g", pd.InitPrice, pd.PriceMin)
	}
	if !(pd.LearningRate >= 0 && pd.LearningRate <= 1) {
		return invalid("learningrate %g must be in [0,1]", pd.LearningRate)
	}
	if pd.MaxGameIters < 1 {
		return invalid("maxgameiters %d < 1", pd.MaxGameIters)
	}
	if pd.MaxRounds < 1 {
		return invalid("maxrounds %d < 1", pd.MaxRounds)
	}
	return nil
}

// WriteToFile stores the ParamDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (pd *ParamDesc) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *pd)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// ReadParamDesc deserializes a byte slice holding a representation of a ParamDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.  Fields the representation leaves out keep
// the values CreateParamDesc gives them.
func ReadParamDesc(filename string, useYAML bool, dict []byte) (*ParamDesc, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := CreateParamDesc("")

	if useYAML {
		err = yaml.Unmarshal(dict, example)
	} else {
		err = json.Unmarshal(dict, example)
	}

	if err != nil {
		return nil, err
	}

	// which fields the representation names
	given := make(map[string]any)
	if useYAML {
		err = yaml.Unmarshal(dict, &given)
	} else {
		err = json.Unmarshal(dict, &given)
	}
	if err != nil {
		return nil, err
	}

	// default vectors are resized when the counts changed but the vectors were
	// not given.  A vector that was given is kept as is, for Validate to judge.
	if _, ok := given["a"]; !ok && len(example.A) != example.Users {
		example.A = fill(example.Users, example.A[0])
	}
	if _, ok := given["c"]; !ok && len(example.C) != example.Servers {
		example.C = fill(example.Servers, example.C[0])
	}
	if _, ok := given["fs"]; !ok && len(example.Fs) != example.Servers {
		example.Fs = fill(example.Servers, example.Fs[0])
	}

	return example, nil
}

// marshalByExt serializes v as yaml or as indented json, as selected by the
// extension of filename
func marshalByExt(filename string, v any) ([]byte, error) {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return yaml.Marshal(v)
	case ".json", ".JSON":
		return json.MarshalIndent(v, "", "\t")
	}
	return nil, fmt.Errorf("unrecognized extension on %q, want .yaml, .yml or .json", filename)
}
