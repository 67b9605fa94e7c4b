// Package timestep implements timesteps of the agent-environment
// interaction, both for single environments and for vectors of
// environments stepped together.
package timestep

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// Features is the observation of a single environment, keyed by input
// name
type Features map[string][]float64

// Info holds auxiliary data returned by an environment. Reward is the
// reward before any shaping was applied. Final is non-nil only on the
// last step of an episode and holds episode-end metadata.
type Info struct {
	Reward float64
	Final  map[string]float64
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	stepType    StepType
	Reward      float64
	Observation Features
	Number      int

	// Truncated is set on a Last step when the episode was cut off
	// rather than terminated
	Truncated bool
	Info      Info
}

// New returns a new TimeStep. The raw reward in its Info is set to r.
func New(t StepType, r float64, o Features, n int) TimeStep {
	return TimeStep{stepType: t, Reward: r, Observation: o, Number: n,
		Info: Info{Reward: r}}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// End makes the TimeStep the last step of its episode. If truncated is
// true, the episode was cut off rather than terminated.
func (t *TimeStep) End(truncated bool) {
	t.stepType = Last
	t.Truncated = truncated
}

// Terminated returns whether the episode ended naturally on this step
func (t *TimeStep) Terminated() bool {
	return t.Last() && !t.Truncated
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Number)
}

// Observation is a batch of observations, keyed by input name. Each
// matrix has one row per environment.
type Observation map[string]*mat.Dense

// Stack stacks the observations of single environments into a batch
func Stack(features []Features) (Observation, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("stack: no observations to stack")
	}

	obs := make(Observation, len(features[0]))
	for key, first := range features[0] {
		data := make([]float64, 0, len(features)*len(first))
		for i, f := range features {
			row, ok := f[key]
			if !ok {
				return nil, fmt.Errorf("stack: observation %d missing key %q",
					i, key)
			}
			if len(row) != len(first) {
				return nil, fmt.Errorf("stack: observation %d key %q has "+
					"size %d, want %d", i, key, len(row), len(first))
			}
			data = append(data, row...)
		}
		obs[key] = mat.NewDense(len(features), len(first), data)
	}
	return obs, nil
}

// Keys returns the input names of the Observation in sorted order
func (o Observation) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Batch returns the number of rows in the Observation
func (o Observation) Batch() int {
	for _, m := range o {
		r, _ := m.Dims()
		return r
	}
	return 0
}

// Rows returns a new Observation made of the given rows
func (o Observation) Rows(rows []int) Observation {
	out := make(Observation, len(o))
	for k, m := range o {
		_, c := m.Dims()
		sub := mat.NewDense(len(rows), c, nil)
		for i, r := range rows {
			sub.SetRow(i, m.RawRowView(r))
		}
		out[k] = sub
	}
	return out
}

// Clone returns a deep copy of the Observation
func (o Observation) Clone() Observation {
	out := make(Observation, len(o))
	for k, m := range o {
		out[k] = mat.DenseCopyOf(m)
	}
	return out
}

// Batch is the result of stepping a vector of environments
type Batch struct {
	Observation Observation
	Reward      []float64
	Terminated  []bool
	Truncated   []bool
	Info        []Info
}

// Done returns, for each environment, whether its episode ended
func (b Batch) Done() []bool {
	done := make([]bool, len(b.Terminated))
	for i := range done {
		done[i] = b.Terminated[i] || b.Truncated[i]
	}
	return done
}
