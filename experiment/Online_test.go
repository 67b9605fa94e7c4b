package experiment

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/experiment/tracker"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/solver"
	"github.com/samuelfneumann/mtppo/timestep"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// bandit is a vector of two-armed bandits. The first arm pays 1 and the
// second pays nothing. Episodes last length steps.
type bandit struct {
	n, length int
	label     string
	steps     []int
}

func newBandit(n, length int, label string) *bandit {
	return &bandit{n: n, length: length, label: label, steps: make([]int, n)}
}

func (b *bandit) NumEnvs() int    { return b.n }
func (b *bandit) NumActions() int { return 2 }

func (b *bandit) Labels() []string {
	l := make([]string, b.n)
	for i := range l {
		l[i] = b.label
	}
	return l
}

func (b *bandit) ObservationSpec() []environment.Spec {
	return []environment.Spec{
		environment.NewSpec("x", 2, 0, 1),
		environment.NewSpec("mission", 1, 0, 1),
	}
}

func (b *bandit) obs() timestep.Observation {
	x := mat.NewDense(b.n, 2, nil)
	for i := 0; i < b.n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(b.steps[i])/float64(b.length))
	}
	return timestep.Observation{"x": x, "mission": mat.NewDense(b.n, 1, nil)}
}

func (b *bandit) Reset(uint64) (timestep.Observation, error) {
	for i := range b.steps {
		b.steps[i] = 0
	}
	return b.obs(), nil
}

func (b *bandit) Step(actions []int) (timestep.Batch, error) {
	batch := timestep.Batch{
		Reward:     make([]float64, b.n),
		Terminated: make([]bool, b.n),
		Truncated:  make([]bool, b.n),
		Info:       make([]timestep.Info, b.n),
	}
	for i, a := range actions {
		if a == 0 {
			batch.Reward[i] = 1
		}
		batch.Info[i].Reward = batch.Reward[i]
		b.steps[i]++
		if b.steps[i] == b.length {
			batch.Terminated[i] = true
			batch.Info[i].Final = map[string]float64{
				"supervised_trials":   0,
				"supervised_reward":   5,
				"unsupervised_trials": 1,
				"unsupervised_reward": 2,
			}
			b.steps[i] = 0
		}
	}
	batch.Observation = b.obs()
	return batch, nil
}

func newBanditModel(t *testing.T) *network.LinearTrace {
	t.Helper()
	m, err := network.NewLinearTrace([]network.Input{{Name: "x", Size: 2}},
		2, 0.5, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testConfig() Config {
	c := DefaultConfig()
	c.RolloutLength = 4
	c.PPO.Epochs = 2
	c.ObsIgnore = []string{"mission"}
	c.MaxSteps = -1
	c.Seed = 3
	return c
}

// nanModel produces NaN gradients. Its rollouts stay finite since
// Forward is that of the embedded LinearTrace.
type nanModel struct {
	*network.LinearTrace
}

func (n nanModel) Fwd(g *network.Graph, obs map[string]*G.Node,
	hidden []*G.Node) (network.Nodes, error) {
	out, err := n.LinearTrace.Fwd(g, obs, hidden)
	if err != nil {
		return out, err
	}
	out.Value, err = G.Mul(out.Value, g.Scalar(math.NaN()))
	return out, err
}

func TestCounter(t *testing.T) {
	c := NewCounter(100)
	c.Add(30)
	if c.Total() != 130 || c.Run() != 30 || c.Start() != 100 {
		t.Errorf("counter: have total %d run %d start %d", c.Total(), c.Run(),
			c.Start())
	}

	tests := []struct {
		maxSteps, maxStepsTotal int
		want                    bool
	}{
		{-1, -1, false},
		{30, -1, true},
		{31, -1, false},
		{-1, 130, true},
		{-1, 131, false},
		{0, 0, false},
	}
	for _, test := range tests {
		if have := c.Exhausted(test.maxSteps, test.maxStepsTotal); have !=
			test.want {
			t.Errorf("exhausted(%d, %d): want %v have %v", test.maxSteps,
				test.maxStepsTotal, test.want, have)
		}
	}
}

func TestPreprocess(t *testing.T) {
	obs := timestep.Observation{
		"a": mat.NewDense(1, 2, []float64{1, 2}),
		"b": mat.NewDense(1, 1, []float64{3}),
		"c": mat.NewDense(1, 1, []float64{4}),
	}
	out := Preprocess(obs, map[string]float64{"a": 0.5}, []string{"c"})

	if _, ok := out["c"]; ok {
		t.Errorf("preprocess: ignored component kept")
	}
	if v := out["a"].RawRowView(0); v[0] != 0.5 || v[1] != 1 {
		t.Errorf("preprocess: want scaled [0.5 1] have %v", v)
	}
	if obs["a"].At(0, 0) != 1 {
		t.Errorf("preprocess: modified its input")
	}
	if out["b"].At(0, 0) != 3 {
		t.Errorf("preprocess: unscaled component changed")
	}

	inputs := Inputs(newBandit(1, 1, "").ObservationSpec(), []string{"mission"})
	if len(inputs) != 1 || inputs[0].Name != "x" || inputs[0].Size != 2 {
		t.Errorf("inputs: have %v", inputs)
	}
}

func TestTask(t *testing.T) {
	Convey("Given a recurrent task on two bandits with episodes of 3 steps",
		t, func() {
			counter := NewCounter(0)
			r := tracker.NewReturn(filepath.Join(t.TempDir(), "data.bin"),
				"reward/", "supervised_reward/", "unsupervised_reward/")
			task, err := NewTask("bandit", newBandit(2, 3, "bandit"),
				newBanditModel(t), counter, r, testConfig())
			So(err, ShouldBeNil)

			first, err := task.Next()
			So(err, ShouldBeNil)

			Convey("The first record follows a full rollout", func() {
				So(counter.Total(), ShouldEqual, 8)
				So(first.Label, ShouldEqual, "bandit")
				So(len(first.EpisodeReturns), ShouldEqual, 2)
			})

			Convey("Each epoch is one record of the same rollout", func() {
				second, err := task.Next()
				So(err, ShouldBeNil)
				So(counter.Total(), ShouldEqual, 8)
				So(second.EpisodeReturns, ShouldBeNil)

				third, err := task.Next()
				So(err, ShouldBeNil)
				So(counter.Total(), ShouldEqual, 16)
				So(third.Record, ShouldNotBeNil)
			})

			Convey("Ended episodes are logged per label", func() {
				rewards := r.Data()["reward/bandit"]
				So(len(rewards), ShouldEqual, 1)
				So(rewards[0].Step, ShouldEqual, 6)

				// Trial rewards are only logged with at least one trial
				So(r.Data()["unsupervised_reward/bandit"], ShouldNotBeEmpty)
				So(r.Data()["supervised_reward/bandit"], ShouldBeEmpty)
			})
		})
}

func TestTaskEpisodeReturns(t *testing.T) {
	counter := NewCounter(0)
	c := testConfig()
	c.RolloutLength = 7
	task, err := NewTask("bandit", newBandit(2, 3, "bandit"),
		newBanditModel(t), counter, nil, c)
	if err != nil {
		t.Fatal(err)
	}

	u, err := task.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(u.EpisodeReturns) != 4 {
		t.Fatalf("want 4 episode returns, have %v", u.EpisodeReturns)
	}
	for _, r := range u.EpisodeReturns {
		if r < 0 || r > 3 {
			t.Errorf("episode return %v outside [0, 3]", r)
		}
	}
}

func TestWarmup(t *testing.T) {
	counter := NewCounter(0)
	r := tracker.NewReturn(filepath.Join(t.TempDir(), "data.bin"))
	c := testConfig()
	c.WarmupSteps = 5
	task, err := NewTask("bandit", newBandit(2, 2, "bandit"),
		newBanditModel(t), counter, r, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := task.Next(); err != nil {
		t.Fatal(err)
	}

	if counter.Total() != 8 {
		t.Errorf("warmup steps should not be counted, have %d", counter.Total())
	}
	lengths := r.Data()["episode_length/bandit"]
	if len(lengths) == 0 || lengths[0].Value != 2 || lengths[0].Step != 0 {
		t.Errorf("warmup episode lengths: have %v", lengths)
	}
}

func TestUpdateHiddenAfterGrad(t *testing.T) {
	c := testConfig()
	c.UpdateHiddenAfterGrad = true
	task, err := NewTask("bandit", newBandit(2, 3, "bandit"),
		newBanditModel(t), NewCounter(0), nil, c)
	if err != nil {
		t.Fatal(err)
	}

	var last *Update
	for i := 0; i < c.PPO.Epochs; i++ {
		if last, err = task.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if task.iter.Next() {
		t.Fatal("expected no more records")
	}
	task.endCycle()

	if task.history.Len() != 1 {
		t.Fatalf("want 1 entry after a cycle, have %d", task.history.Len())
	}
	if !mat.Equal(task.history.Hidden(0)[0], last.Record.Hidden[0]) {
		t.Errorf("hidden state was not replaced by the recomputed one")
	}
}

func TestOnlineBudget(t *testing.T) {
	c := testConfig()
	c.MaxSteps = 16
	counter := NewCounter(0)
	s, err := solver.New("Adam", 0.01)
	if err != nil {
		t.Fatal(err)
	}

	o, err := NewOnline(newBanditModel(t), s, []string{"bandit"},
		[]environment.Vector{newBandit(2, 3, "bandit")}, counter, nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Two epochs on the first rollout, then the second rollout exhausts
	// the budget before it is used
	if o.Iterations() != 2 {
		t.Errorf("want 2 updates have %d", o.Iterations())
	}
	if counter.Total() != 16 {
		t.Errorf("want 16 steps have %d", counter.Total())
	}
	if err := o.Step(); !errors.Is(err, ErrBudgetReached) {
		t.Errorf("step: want(%v) have(%v)", ErrBudgetReached, err)
	}
}

func TestOnlineLearns(t *testing.T) {
	c := testConfig()
	c.RolloutLength = 16
	c.MaxSteps = -1
	m := newBanditModel(t)
	s, err := solver.New("Adam", 0.01)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOnline(m, s, []string{"a", "b"}, []environment.Vector{
		newBandit(4, 5, "a"), newBandit(4, 5, "b")}, NewCounter(0), nil, c)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 40; i++ {
		if err := o.Step(); err != nil {
			t.Fatal(err)
		}
	}

	bias := m.Learnables()[1].Data()
	if bias[0] <= bias[1] {
		t.Errorf("the paying arm should be preferred, have action bias %v",
			bias)
	}
}

func TestOnlineNaN(t *testing.T) {
	m := nanModel{newBanditModel(t)}
	s, err := solver.New("SGD", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOnline(m, s, []string{"bandit"}, []environment.Vector{
		newBandit(2, 3, "bandit")}, NewCounter(0), nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}

	before := append([]float64(nil), m.Learnables()[0].Data()...)
	if err := o.Step(); !errors.Is(err, ErrNaNGradient) {
		t.Fatalf("step: want(%v) have(%v)", ErrNaNGradient, err)
	}
	if !floatsEqual(before, m.Learnables()[0].Data()) {
		t.Errorf("parameters changed on a NaN gradient")
	}
	if o.Iterations() != 0 {
		t.Errorf("want no updates have %d", o.Iterations())
	}
}

func TestOnlineWeights(t *testing.T) {
	Convey("Given two tasks", t, func() {
		c := testConfig()
		envs := func() []environment.Vector {
			return []environment.Vector{newBandit(2, 3, "a"),
				newBandit(2, 3, "b")}
		}
		s, err := solver.New("SGD", 0.01)
		So(err, ShouldBeNil)
		r := tracker.NewReturn(filepath.Join(t.TempDir(), "data.bin"),
			"multitask_dynamic_weight/", "loss/total/")

		Convey("Static weights are normalized and logged", func() {
			c.Multitask.StaticWeight = []float64{3, 1}
			o, err := NewOnline(newBanditModel(t), s, []string{"a", "b"},
				envs(), NewCounter(0), r, c)
			So(err, ShouldBeNil)
			So(o.Step(), ShouldBeNil)
			So(r.Data().Values("multitask_dynamic_weight/a"), ShouldResemble,
				[]float64{0.75})
			So(r.Data().Values("multitask_dynamic_weight/b"), ShouldResemble,
				[]float64{0.25})
		})

		Convey("Without weights losses are averaged and not weighted", func() {
			o, err := NewOnline(newBanditModel(t), s, []string{"a", "b"},
				envs(), NewCounter(0), r, c)
			So(err, ShouldBeNil)
			So(o.Step(), ShouldBeNil)
			So(r.Data()["multitask_dynamic_weight/a"], ShouldBeEmpty)
			So(r.Data()["loss/total/a"], ShouldNotBeEmpty)
		})

		Convey("Dynamic weights need scores for every task", func() {
			c.Multitask.Dynamic = true
			c.Multitask.MaxScore = []float64{1}
			c.Multitask.RandomScore = []float64{0}
			_, err := NewOnline(newBanditModel(t), s, []string{"a", "b"},
				envs(), NewCounter(0), r, c)
			So(err, ShouldNotBeNil)
		})

		Convey("Task labels must be unique", func() {
			_, err := NewOnline(newBanditModel(t), s, []string{"a", "a"},
				envs(), NewCounter(0), r, c)
			So(err, ShouldNotBeNil)
		})
	})
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
