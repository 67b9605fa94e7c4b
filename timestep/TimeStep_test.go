package timestep

import (
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEnd(t *testing.T) {
	step := New(Mid, 1.5, Features{"x": {1}}, 3)
	if step.Info.Reward != 1.5 {
		t.Errorf("new: want raw reward 1.5 have %v", step.Info.Reward)
	}
	if step.Last() || step.Terminated() {
		t.Fatalf("mid step reported as last")
	}

	step.End(true)
	if !step.Last() || step.Terminated() {
		t.Errorf("truncated step: last %v terminated %v", step.Last(),
			step.Terminated())
	}

	step.End(false)
	if !step.Terminated() {
		t.Errorf("terminated step not reported as terminated")
	}
}

func TestStack(t *testing.T) {
	obs, err := Stack([]Features{
		{"pos": {1, 2}, "r": {0}},
		{"pos": {3, 4}, "r": {1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if obs.Batch() != 2 {
		t.Errorf("batch: want 2 have %d", obs.Batch())
	}
	if !reflect.DeepEqual(obs.Keys(), []string{"pos", "r"}) {
		t.Errorf("keys: have %v", obs.Keys())
	}
	want := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !mat.Equal(obs["pos"], want) {
		t.Errorf("pos: want(%v) have(%v)", mat.Formatted(want),
			mat.Formatted(obs["pos"]))
	}

	rows := obs.Rows([]int{1, 1, 0})
	if v := rows["pos"].RawRowView(2); v[0] != 1 || v[1] != 2 {
		t.Errorf("rows: have %v", v)
	}

	clone := obs.Clone()
	clone["r"].Set(0, 0, 9)
	if obs["r"].At(0, 0) != 0 {
		t.Errorf("clone shares memory with the original")
	}

	if _, err := Stack([]Features{{"pos": {1}}, {"pos": {1, 2}}}); err == nil {
		t.Errorf("stack: expected an error for mismatched sizes")
	}
	if _, err := Stack([]Features{{"pos": {1}}, {"r": {1}}}); err == nil {
		t.Errorf("stack: expected an error for a missing key")
	}
}

func TestDone(t *testing.T) {
	b := Batch{
		Terminated: []bool{true, false, false},
		Truncated:  []bool{false, true, false},
	}
	if !reflect.DeepEqual(b.Done(), []bool{true, true, false}) {
		t.Errorf("done: have %v", b.Done())
	}
}
