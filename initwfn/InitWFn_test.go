package initwfn

import (
	"encoding/json"
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func TestUnmarshal(t *testing.T) {
	for _, ty := range []Type{GlorotU, GlorotN, Uniform, Zeroes} {
		var w *InitWFn
		var err error
		switch ty {
		case GlorotU:
			w, err = NewGlorotU(1)
		case GlorotN:
			w, err = NewGlorotN(1)
		case Uniform:
			w, err = NewUniform(-0.5, 0.5)
		case Zeroes:
			w, err = NewZeroes()
		}
		if err != nil {
			t.Fatal(err)
		}

		data, err := json.Marshal(w)
		if err != nil {
			t.Fatal(err)
		}
		var got InitWFn
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("%v: %v", ty, err)
		}
		if got.Type != ty || got.Config.Type() != ty {
			t.Errorf("unmarshalled %v as %v", ty, got.Type)
		}
	}

	var w InitWFn
	if err := json.Unmarshal([]byte(`{"Type": "Orthogonal"}`), &w); err == nil {
		t.Error("expected an error for an unknown type")
	}
}

func TestFill(t *testing.T) {
	u, _ := NewUniform(-0.5, 0.5)
	values := u.InitWFn(1)(tensor.Float64, 3, 4).([]float64)
	if len(values) != 12 {
		t.Fatalf("have %d values, want 12", len(values))
	}
	for _, v := range values {
		if v < -0.5 || v > 0.5 {
			t.Errorf("value %v outside of [-0.5, 0.5]", v)
		}
	}

	again := u.InitWFn(1)(tensor.Float64, 3, 4).([]float64)
	for i := range values {
		if values[i] != again[i] {
			t.Fatal("same seed gave different weights")
		}
	}

	z, _ := NewZeroes()
	for _, v := range z.InitWFn(1)(tensor.Float64, 5).([]float64) {
		if v != 0 {
			t.Errorf("have %v, want 0", v)
		}
	}

	g, _ := NewGlorotU(1)
	limit := math.Sqrt(6.0 / 7)
	for _, v := range g.InitWFn(2)(tensor.Float64, 3, 4).([]float64) {
		if math.Abs(v) > limit {
			t.Errorf("value %v outside of Glorot limit %v", v, limit)
		}
	}
}
