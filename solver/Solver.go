// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuration files and
// checkpoints.
package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// ErrUnknown is returned when a solver is requested by an unknown name
var ErrUnknown = errors.New("unknown solver")

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSprop"
	Vanilla Type = "SGD"
)

// configTypes maps each solver type to its configuration type
var configTypes = map[string]reflect.Type{
	string(Adam):    reflect.TypeOf(AdamConfig{}),
	string(RMSProp): reflect.TypeOf(RMSPropConfig{}),
	string(Vanilla): reflect.TypeOf(VanillaConfig{}),
}

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// New returns a new solver of the named type with default
// hyperparameters and the given learning rate. Gradients are expected
// to already be averaged, so the solver uses a batch size of 1.
func New(name string, learningRate float64) (*Solver, error) {
	switch Type(name) {
	case Adam:
		return NewDefaultAdam(learningRate, 1)
	case RMSProp:
		return NewDefaultRMSProp(learningRate, 1)
	case Vanilla:
		return NewVanilla(learningRate, 1, -1)
	}
	return nil, fmt.Errorf("new: %w %q", ErrUnknown, name)
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface. The
// unmarshalled Solver starts with fresh internal state.
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config",
		configTypes)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %w", err)
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("missing field %q", typeJsonField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("%w %q", ErrUnknown, typeName)
	}
	value := reflect.New(ty)

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}
	if err = json.Unmarshal(valueBytes, value.Interface()); err != nil {
		return nil, "", err
	}

	return value.Elem().Interface().(Config), Type(typeName), nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
