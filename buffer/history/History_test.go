package history

import (
	"testing"

	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
)

func obsOf(v float64) timestep.Observation {
	return timestep.Observation{"x": mat.NewDense(2, 1, []float64{v, -v})}
}

func hiddenOf(v float64) network.Hidden {
	return network.Hidden{mat.NewDense(2, 1, []float64{v, v})}
}

func TestAppendAndClear(t *testing.T) {
	b, err := New(2, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.AppendObs(obsOf(0), nil, nil, hiddenOf(0)); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 2; i++ {
		if err := b.AppendAction([]int{i, i}); err != nil {
			t.Fatal(err)
		}
		err := b.AppendObs(obsOf(float64(i)), []float64{float64(i), 0},
			[]bool{i == 2, false}, hiddenOf(float64(i)))
		if err != nil {
			t.Fatal(err)
		}
	}

	if b.Len() != 3 || b.NumActions() != 2 {
		t.Fatalf("want 3 entries and 2 actions, have %d and %d", b.Len(),
			b.NumActions())
	}
	if r := b.Reward(0); r[0] != 0 || r[1] != 0 {
		t.Errorf("first reward should be zero, have %v", r)
	}
	if !b.Terminal(2)[0] || b.Terminal(2)[1] {
		t.Errorf("terminal(2): have %v", b.Terminal(2))
	}

	// Acting twice in the same observation is an error
	if err := b.AppendAction([]int{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendAction([]int{0, 0}); err == nil {
		t.Errorf("appendAction: expected an error")
	}

	b.Clear()
	if b.Len() != 1 || b.NumActions() != 0 {
		t.Fatalf("clear: want 1 entry and no actions, have %d and %d",
			b.Len(), b.NumActions())
	}
	if v := b.Obs(0)["x"].At(0, 0); v != 2 {
		t.Errorf("clear: want last observation kept, have %v", v)
	}
	if v := b.Hidden(0)[0].At(0, 0); v != 2 {
		t.Errorf("clear: want last hidden kept, have %v", v)
	}
	if !b.Terminal(0)[0] {
		t.Errorf("clear: want last terminal kept")
	}
}

func TestRolling(t *testing.T) {
	b, err := New(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if i > 0 {
			if err := b.AppendAction([]int{i, i}); err != nil {
				t.Fatal(err)
			}
		}
		if err := b.AppendObs(obsOf(float64(i)), nil, nil,
			hiddenOf(0)); err != nil {
			t.Fatal(err)
		}
	}
	if b.Len() != 2 {
		t.Fatalf("want 2 entries, have %d", b.Len())
	}
	if v := b.Obs(0)["x"].At(0, 0); v != 2 {
		t.Errorf("oldest entry: want 2 have %v", v)
	}
	if a := b.Action(0); a[0] != 3 {
		t.Errorf("oldest action: want 3 have %v", a)
	}
}

func TestAppendErrors(t *testing.T) {
	b, err := New(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.AppendObs(obsOf(0), []float64{1}, nil, hiddenOf(0)); err == nil {
		t.Errorf("appendObs: expected an error for a short reward")
	}
	one := timestep.Observation{"x": mat.NewDense(1, 1, nil)}
	if err := b.AppendObs(one, nil, nil, hiddenOf(0)); err == nil {
		t.Errorf("appendObs: expected an error for a short observation")
	}
	if _, err := New(0, 3); err == nil {
		t.Errorf("new: expected an error for no environments")
	}
}
