package environment

import "fmt"

// Spec describes one named observation input of an environment
type Spec struct {
	Name       string
	Size       int
	LowerBound float64
	UpperBound float64
}

// NewSpec constructs a new observation specification
func NewSpec(name string, size int, lowerBound, upperBound float64) Spec {
	if size <= 0 {
		panic(fmt.Sprintf("newSpec: size of %q must be positive, have %d",
			name, size))
	}
	if lowerBound > upperBound {
		panic(fmt.Sprintf("newSpec: lower bound %v of %q exceeds upper "+
			"bound %v", lowerBound, name, upperBound))
	}
	return Spec{name, size, lowerBound, upperBound}
}

// String implements the fmt.Stringer interface
func (s Spec) String() string {
	return fmt.Sprintf("%v(%d) ∈ [%v, %v]", s.Name, s.Size, s.LowerBound,
		s.UpperBound)
}
