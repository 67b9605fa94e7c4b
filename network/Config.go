package network

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/mtppo/initwfn"
)

// ErrUnknown is returned when a model type is not known
var ErrUnknown = errors.New("unknown model type")

// Type describes the model types that can be created
type Type string

// Available model types
const (
	LinearTraceType Type = "LinearTrace"

	// Linear is a LinearTrace whose trace holds only the previous
	// observation
	Linear Type = "Linear"

	// RNNType is an Elman recurrent network with learned recurrence
	RNNType Type = "RNN"
)

// Config describes a model
type Config struct {
	Type  Type
	Decay float64 // LinearTrace only
	Init  *initwfn.InitWFn
	Seed  uint64

	// RNN only
	Hidden     int
	Activation string
}

// Validate returns an error if the Config does not describe a model
func (c Config) Validate() error {
	switch c.Type {
	case LinearTraceType:
		if c.Decay < 0 || c.Decay >= 1 {
			return fmt.Errorf("validate: decay must be in [0, 1), have %v",
				c.Decay)
		}
	case Linear:
	case RNNType:
		if c.Hidden <= 0 {
			return fmt.Errorf("validate: hidden size must be positive, "+
				"have %d", c.Hidden)
		}
		if _, err := ActivationByName(c.Activation); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	default:
		return fmt.Errorf("validate: %w %q", ErrUnknown, c.Type)
	}
	return nil
}

// New returns the model described by c over the given inputs
func New(c Config, inputs []Input, actions int) (Trainable, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	init := c.Init
	if init == nil {
		var err error
		if init, err = initwfn.NewGlorotU(1.0); err != nil {
			return nil, err
		}
	}

	switch c.Type {
	case RNNType:
		act, _ := ActivationByName(c.Activation)
		return NewRNN(inputs, c.Hidden, actions, act, init, c.Seed)
	case Linear:
		return NewLinearTrace(inputs, actions, 0, init, c.Seed)
	default:
		return NewLinearTrace(inputs, actions, c.Decay, init, c.Seed)
	}
}
