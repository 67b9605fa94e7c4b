package network

import (
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/mtppo/initwfn"
	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
)

func newTestModel(t *testing.T) *LinearTrace {
	t.Helper()
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	inputs := []Input{
		{Name: "position", Size: 3},
		{Name: "reward", Size: 1},
	}
	m, err := NewLinearTrace(inputs, 2, 0.5, init, 11)
	if err != nil {
		t.Fatal(err)
	}

	// Non-zero heads so that every parameter matters
	for i, p := range m.Learnables() {
		d := p.Data()
		for j := range d {
			d[j] += 0.1 * float64(i+1) * math.Sin(float64(j+1))
		}
	}
	return m
}

func testObservation() timestep.Observation {
	return timestep.Observation{
		"position": mat.NewDense(2, 3, []float64{1, 0, 0, 0, 0.5, 1}),
		"reward":   mat.NewDense(2, 1, []float64{0.25, -1}),
	}
}

func TestResetWhere(t *testing.T) {
	h := Hidden{
		mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		mat.NewDense(3, 1, []float64{7, 8, 9}),
	}
	init := Hidden{
		mat.NewDense(3, 2, []float64{-1, -1, -2, -2, -3, -3}),
		mat.NewDense(3, 1, []float64{-4, -5, -6}),
	}

	reset, err := h.ResetWhere([]bool{false, true, false}, init)
	if err != nil {
		t.Fatal(err)
	}

	for l := range h {
		r, _ := h[l].Dims()
		for i := 0; i < r; i++ {
			want := h[l].RawRowView(i)
			if i == 1 {
				want = init[l].RawRowView(i)
			}
			if !mat.Equal(mat.NewVecDense(len(want), want),
				mat.NewVecDense(len(want), reset[l].RawRowView(i))) {
				t.Errorf("layer %d row %d: want(%v) have(%v)", l, i, want,
					reset[l].RawRowView(i))
			}
		}
	}

	// The original hidden state is untouched
	if h[0].At(1, 0) != 3 || h[1].At(1, 0) != 8 {
		t.Errorf("resetWhere modified its receiver")
	}

	if _, err := h.ResetWhere([]bool{true}, init); err == nil {
		t.Errorf("resetWhere: expected an error for a short mask")
	}
}

func TestForwardTrace(t *testing.T) {
	m := newTestModel(t)
	obs := testObservation()
	h := m.InitHidden(2)

	out, err := m.Forward(obs, h)
	if err != nil {
		t.Fatal(err)
	}

	// Inputs are ordered by name: position then reward
	want := mat.NewDense(2, 4, []float64{0.5, 0, 0, 0.125, 0, 0.25, 0.5, -0.5})
	if !mat.EqualApprox(out.Hidden[0], want, 1e-12) {
		t.Errorf("trace: want(%v) have(%v)", mat.Formatted(want),
			mat.Formatted(out.Hidden[0]))
	}

	if r, c := out.Logits.Dims(); r != 2 || c != 2 {
		t.Errorf("logits: want shape (2, 2) have (%d, %d)", r, c)
	}
	if len(out.Value) != 2 {
		t.Errorf("value: want length 2 have %d", len(out.Value))
	}

	// Forward does not change its inputs
	if h[0].At(0, 0) != 0 {
		t.Errorf("forward modified the hidden state")
	}
}

// TestGraphGradient checks the gradients of a loss over three chained
// steps against finite differences
func TestGraphGradient(t *testing.T) {
	checkGraphGradient(t, newTestModel(t))
}

func TestAttender(t *testing.T) {
	var model Model = newTestModel(t)
	a, ok := model.(Attender)
	if !ok {
		t.Fatal("LinearTrace does not expose attention")
	}
	att := a.Attention()
	for _, key := range []string{"position", "position_trace", "reward",
		"reward_trace"} {
		if v, ok := att[key]; !ok || v < 0 {
			t.Errorf("attention %q: have %v, %v", key, v, ok)
		}
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Config{Type: "Transformer"}, []Input{{Name: "x", Size: 1}}, 2)
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("new: want(%v) have(%v)", ErrUnknown, err)
	}

	m, err := New(Config{Type: Linear}, []Input{{Name: "x", Size: 2}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumActions() != 3 {
		t.Errorf("numActions: want 3 have %d", m.NumActions())
	}
}
