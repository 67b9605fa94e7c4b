package solver

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/mtppo/network"
	G "gorgonia.org/gorgonia"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"Adam", "RMSprop", "SGD"} {
		s, err := New(name, 0.01)
		if err != nil {
			t.Errorf("new(%q): %v", name, err)
			continue
		}
		if string(s.Type) != name {
			t.Errorf("new(%q): have type %v", name, s.Type)
		}
	}

	if _, err := New("Adagrad", 0.01); !errors.Is(err, ErrUnknown) {
		t.Errorf("new: want(%v) have(%v)", ErrUnknown, err)
	}
}

func TestJSON(t *testing.T) {
	s, err := NewAdam(0.003, 1e-6, 0.8, 0.99, 1)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}

	var loaded Solver
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.Type != Adam {
		t.Errorf("type: want %v have %v", Adam, loaded.Type)
	}
	if c, ok := loaded.Config.(AdamConfig); !ok || c != s.Config.(AdamConfig) {
		t.Errorf("config: want %v have %v", s.Config, loaded.Config)
	}
	if loaded.Solver == nil {
		t.Errorf("unmarshalled solver has no Gorgonia solver")
	}

	err = json.Unmarshal([]byte(`{"Type": "Adagrad", "Config": {}}`), &loaded)
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("unmarshal: want(%v) have(%v)", ErrUnknown, err)
	}
}

func TestVanillaStep(t *testing.T) {
	s, err := New("SGD", 0.1)
	if err != nil {
		t.Fatal(err)
	}

	p := network.NewParam("w", nil, 3)
	copy(p.GradData(), []float64{1, -2, 0.5})
	if err := s.Step([]G.ValueGrad{p}); err != nil {
		t.Fatal(err)
	}

	want := []float64{-0.1, 0.2, -0.05}
	for i, v := range p.Data() {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("w[%d]: want %v have %v", i, want[i], v)
		}
	}
}

func TestAdamStepDirection(t *testing.T) {
	s, err := New("Adam", 0.01)
	if err != nil {
		t.Fatal(err)
	}

	p := network.NewParam("w", nil, 2)
	copy(p.GradData(), []float64{3, -0.5})
	if err := s.Step([]G.ValueGrad{p}); err != nil {
		t.Fatal(err)
	}

	if d := p.Data(); d[0] >= 0 || d[1] <= 0 {
		t.Errorf("adam should step against the gradient, have %v", d)
	}
}
