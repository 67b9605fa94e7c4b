package vector

import (
	"testing"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/timestep"
)

// counter is an environment whose observation counts steps and whose
// episodes last length steps
type counter struct {
	length int
	seed   uint64
	steps  int
}

func (c *counter) Seed(seed uint64) { c.seed = seed }

func (c *counter) Reset() (timestep.TimeStep, error) {
	c.steps = 0
	return timestep.New(timestep.First, 0, c.obs(), 0), nil
}

func (c *counter) Step(a int) (timestep.TimeStep, error) {
	c.steps++
	step := timestep.New(timestep.Mid, float64(a), c.obs(), c.steps)
	if c.steps == c.length {
		step.End(c.length > 2)
		step.Info.Final = map[string]float64{"length": float64(c.steps)}
	}
	return step, nil
}

func (c *counter) obs() timestep.Features {
	return timestep.Features{"count": {float64(c.steps)},
		"seed": {float64(c.seed)}}
}

func (c *counter) NumActions() int { return 2 }

func (c *counter) ObservationSpec() []environment.Spec {
	return []environment.Spec{
		environment.NewSpec("count", 1, 0, 10),
		environment.NewSpec("seed", 1, 0, 100),
	}
}

func TestSyncAutoReset(t *testing.T) {
	envs := []environment.Environment{&counter{length: 2},
		&counter{length: 3}}
	v, err := NewSync(envs, "fetch")
	if err != nil {
		t.Fatal(err)
	}
	if labels := v.Labels(); len(labels) != 2 || labels[1] != "fetch" {
		t.Errorf("labels: have %v", labels)
	}

	obs, err := v.Reset(10)
	if err != nil {
		t.Fatal(err)
	}
	if s := obs["seed"].At(1, 0); s != 11 {
		t.Errorf("reset: environment 1 should be seeded with 11, have %v", s)
	}

	var b timestep.Batch
	for i := 0; i < 2; i++ {
		if b, err = v.Step([]int{1, 0}); err != nil {
			t.Fatal(err)
		}
	}

	// Environment 0 terminated and was reset, environment 1 continues
	if !b.Terminated[0] || b.Truncated[0] || b.Done()[1] {
		t.Errorf("step 2: terminated %v truncated %v", b.Terminated,
			b.Truncated)
	}
	if c := b.Observation["count"].At(0, 0); c != 0 {
		t.Errorf("step 2: want first observation of the next episode, "+
			"have count %v", c)
	}
	if b.Info[0].Final["length"] != 2 || b.Info[1].Final != nil {
		t.Errorf("step 2: final info %v", b.Info)
	}
	if b.Reward[0] != 1 || b.Reward[1] != 0 {
		t.Errorf("step 2: rewards %v", b.Reward)
	}

	if b, err = v.Step([]int{0, 0}); err != nil {
		t.Fatal(err)
	}
	if !b.Truncated[1] || b.Terminated[1] {
		t.Errorf("step 3: environment 1 should be truncated")
	}

	if _, err := v.Step([]int{0}); err == nil {
		t.Errorf("step: expected an error for too few actions")
	}
}

func TestSyncMismatchedEnvs(t *testing.T) {
	envs := []environment.Environment{&counter{length: 2}, &other{}}
	if _, err := NewSync(envs, "x"); err == nil {
		t.Errorf("newSync: expected an error for mismatched environments")
	}
}

type other struct{ counter }

func (o *other) NumActions() int { return 3 }
