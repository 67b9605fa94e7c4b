package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// CategoricalStarter returns starting configurations sampled from
// a multi-dimensional uniform categorical distribution. The categorical
// distributions sample values in (0, 1, 2, ... N-1).
type CategoricalStarter struct {
	bounds []int
	rand   []distuv.Categorical
}

// NewCategoricalStarter returns a new CategoricalStarter, sampling
// dimension i from (0, 1, 2, ... bounds[i]-1)
func NewCategoricalStarter(bounds []int, seed uint64) *CategoricalStarter {
	c := &CategoricalStarter{bounds: append([]int(nil), bounds...)}
	c.Seed(seed)
	return c
}

// Seed reseeds the CategoricalStarter
func (c *CategoricalStarter) Seed(seed uint64) {
	source := rand.NewSource(seed)

	c.rand = make([]distuv.Categorical, len(c.bounds))
	for i := range c.rand {
		// Create the weights for the uniform categorical distribution
		weights := make([]float64, c.bounds[i])
		for j := range weights {
			weights[j] = 1.0 / float64(len(weights))
		}

		c.rand[i] = distuv.NewCategorical(weights, source)
	}
}

// Start returns a starting configuration
func (c *CategoricalStarter) Start() []int {
	start := make([]int, len(c.rand))
	for i := range start {
		start[i] = int(c.rand[i].Rand())
	}
	return start
}
