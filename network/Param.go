package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is a learnable parameter and its accumulated gradient. Param
// implements the Gorgonia ValueGrad interface so that Gorgonia solvers
// can update it in place.
type Param struct {
	name  string
	value *tensor.Dense
	grad  *tensor.Dense
}

// NewParam returns a new Param with the given shape, initialized by
// init. If init is nil, the Param is initialized to zero.
func NewParam(name string, init G.InitWFn, shape ...int) *Param {
	size := 1
	for _, s := range shape {
		size *= s
	}

	var backing []float64
	if init != nil {
		backing = init(tensor.Float64, shape...).([]float64)
	} else {
		backing = make([]float64, size)
	}

	return &Param{
		name:  name,
		value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)),
		grad: tensor.New(tensor.WithShape(shape...),
			tensor.WithBacking(make([]float64, size))),
	}
}

// Name returns the name of the parameter
func (p *Param) Name() string {
	return p.name
}

// Shape returns the shape of the parameter
func (p *Param) Shape() []int {
	return []int(p.value.Shape())
}

// Value implements the Gorgonia Valuer interface
func (p *Param) Value() G.Value {
	return p.value
}

// Grad implements the Gorgonia ValueGrad interface
func (p *Param) Grad() (G.Value, error) {
	return p.grad, nil
}

// Data returns the backing data of the parameter. Changes to the
// returned slice change the parameter.
func (p *Param) Data() []float64 {
	return p.value.Data().([]float64)
}

// GradData returns the backing data of the accumulated gradient
func (p *Param) GradData() []float64 {
	return p.grad.Data().([]float64)
}

// Set sets the parameter's values
func (p *Param) Set(data []float64) error {
	if len(data) != len(p.Data()) {
		return fmt.Errorf("set: parameter %v has %d elements, have %d",
			p.name, len(p.Data()), len(data))
	}
	copy(p.Data(), data)
	return nil
}

// ZeroGrad zeroes the accumulated gradient
func (p *Param) ZeroGrad() {
	g := p.GradData()
	for i := range g {
		g[i] = 0
	}
}

// node adds to g an input node holding a copy of the parameter's value
func (p *Param) node(g *G.ExprGraph) *G.Node {
	return G.NewTensor(g, tensor.Float64, len(p.Shape()),
		G.WithShape(p.Shape()...),
		G.WithValue(p.value.Clone().(*tensor.Dense)),
		G.WithName(p.name),
	)
}
