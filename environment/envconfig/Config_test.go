package envconfig

import (
	"errors"
	"strings"
	"testing"

	"github.com/samuelfneumann/mtppo/environment/wrappers"
	"github.com/samuelfneumann/mtppo/noise"
)

func TestPresetsValidate(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatal("no presets")
	}
	for _, name := range names {
		c, err := Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if c.Name != name {
			t.Errorf("%v: preset has name %v", name, c.Name)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("%v: %v", name, err)
		}
	}

	if _, err := Get("fetch-999"); !errors.Is(err, ErrUnknown) {
		t.Errorf("get: want(%v) have(%v)", ErrUnknown, err)
	}
}

func TestInheritance(t *testing.T) {
	base, err := Get("fetch-004")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Get("fetch-004-stop_100_trials")
	if err != nil {
		t.Fatal(err)
	}

	if c.GridWorld.MinSize != base.GridWorld.MinSize ||
		c.GridWorld.NumTrials != base.GridWorld.NumTrials {
		t.Errorf("stop_100_trials should inherit the room of fetch-004")
	}
	if c.GridWorld.IncludeReward {
		t.Errorf("stop_100_trials should exclude the reward observation")
	}
	if c.Shaped == nil || c.Shaped.Type != wrappers.Subtask {
		t.Fatalf("stop_100_trials should use a subtask shaped reward")
	}
	if c.Shaped.Noise.Mode != noise.Stop || c.Shaped.Noise.Param != 100 {
		t.Errorf("stop_100_trials noise: have %v", c.Shaped.Noise)
	}
	if base.Shaped != nil || !base.GridWorld.IncludeReward {
		t.Errorf("inheriting modified fetch-004")
	}

	d, err := Get("fetch-005-stop_20-delay_1_2")
	if err != nil {
		t.Fatal(err)
	}
	if d.GridWorld.MaxSize != 12 || d.Shaped.Noise.Delay == nil ||
		d.Shaped.Noise.Delay.Max != 2 {
		t.Errorf("fetch-005-stop_20-delay_1_2: have %+v", d)
	}
}

func TestVector(t *testing.T) {
	c, err := Get("fetch-004-zero_dynamic")
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Vector(3, "zero_dynamic", 7)
	if err != nil {
		t.Fatal(err)
	}
	obs, err := v.Reset(7)
	if err != nil {
		t.Fatal(err)
	}

	if v.NumEnvs() != 3 || obs.Batch() != 3 {
		t.Errorf("want 3 environments, have %d and batch %d", v.NumEnvs(),
			obs.Batch())
	}
	for _, spec := range v.ObservationSpec() {
		m, ok := obs[spec.Name]
		if !ok {
			t.Errorf("observation missing %v", spec.Name)
			continue
		}
		if _, cols := m.Dims(); cols != spec.Size {
			t.Errorf("%v: want %d columns have %d", spec.Name, spec.Size, cols)
		}
	}
	if _, ok := obs[wrappers.ShapedKey]; !ok {
		t.Errorf("observation missing the shaped reward")
	}
	if _, ok := obs["reward"]; ok {
		t.Errorf("observation should not include the reward")
	}

	b, err := v.Step([]int{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Reward) != 3 {
		t.Errorf("step: want 3 rewards have %d", len(b.Reward))
	}
}

func TestPresetFamilies(t *testing.T) {
	for _, name := range []string{
		"fetch-debug",
		"fetch-002-shaped",
		"fetch-004-shaped-progress",
		"fetch-004-zero_7_7_trials",
		"fetch-005-stop_1-delay_1",
		"fetch-005-zero_1_9_trials",
		"fetch-005-stop_dynamic-delay_1_5",
		"fetch-005-delayed_start_10_30_trials",
		"fetch-005-delayed_start_100_trials",
	} {
		if _, err := Get(name); err != nil {
			t.Errorf("%v: %v", name, err)
		}
	}

	// Families needing other environments are not provided
	for _, name := range Names() {
		if strings.HasPrefix(name, "fetch2-") ||
			strings.HasPrefix(name, "delayed-") {
			t.Errorf("unexpected preset %v", name)
		}
	}
}
