package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig initializes all weights to zero
type ZeroesConfig struct {
}

// NewZeroes returns a new weight initializer which zeroes weights
func NewZeroes() (*InitWFn, error) {
	config := ZeroesConfig{}

	return newInitWFn(config)
}

func (z ZeroesConfig) Type() Type {
	return Zeroes
}

func (z ZeroesConfig) Create(uint64) G.InitWFn {
	return fill(func(int, int) float64 { return 0 })
}
