// Package checkpointer implements saving and loading the state of a
// training run so that it can be resumed
package checkpointer

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/solver"
)

// Checkpointer checkpoints the state of a training run based on the
// number of updates performed
type Checkpointer interface {
	Checkpoint(iteration int) error
}

// Bundle is the saved state of a training run: the model parameters,
// the optimizer configuration, and the number of environment steps
// taken. The optimizer's internal state, such as Adam moments, is not
// saved and starts fresh when a Bundle is restored.
type Bundle struct {
	Params map[string][]float64
	Solver []byte // JSON encoded solver.Solver
	Step   int
	RunID  string
}

// NewBundle returns a new Bundle holding the current state of a run
func NewBundle(m network.Trainable, s *solver.Solver, step int,
	runID string) (*Bundle, error) {
	params := make(map[string][]float64)
	for _, p := range m.Learnables() {
		if _, ok := params[p.Name()]; ok {
			return nil, fmt.Errorf("newBundle: duplicate parameter %q",
				p.Name())
		}
		params[p.Name()] = append([]float64(nil), p.Data()...)
	}

	var config []byte
	if s != nil {
		var err error
		if config, err = json.Marshal(s); err != nil {
			return nil, fmt.Errorf("newBundle: %w", err)
		}
	}
	return &Bundle{Params: params, Solver: config, Step: step, RunID: runID}, nil
}

// Restore sets the parameters of m to those in the Bundle. Every
// parameter of m must be present in the Bundle.
func (b *Bundle) Restore(m network.Trainable) error {
	for _, p := range m.Learnables() {
		data, ok := b.Params[p.Name()]
		if !ok {
			return fmt.Errorf("restore: missing parameter %q", p.Name())
		}
		if err := p.Set(data); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	return nil
}

// RestoreSolver returns the solver saved in the Bundle, or nil if no
// solver was saved
func (b *Bundle) RestoreSolver() (*solver.Solver, error) {
	if len(b.Solver) == 0 {
		return nil, nil
	}
	var s solver.Solver
	if err := json.Unmarshal(b.Solver, &s); err != nil {
		return nil, fmt.Errorf("restoreSolver: %w", err)
	}
	return &s, nil
}

// Save gob encodes the Bundle to filename. The Bundle is first written
// to a temporary file in the same directory which then replaces
// filename, so an interrupted Save never leaves a partial checkpoint.
func Save(filename string, b *Bundle) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(b); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Load loads the Bundle saved in filename. If filename does not exist
// or is empty, Load returns a nil Bundle and no error.
func Load(filename string) (*Bundle, error) {
	info, err := os.Stat(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer file.Close()

	var b Bundle
	if err := gob.NewDecoder(file).Decode(&b); err != nil {
		return nil, fmt.Errorf("load: could not decode checkpoint: %w", err)
	}
	return &b, nil
}
