package ppo

import (
	"math"
	"testing"

	"github.com/samuelfneumann/mtppo/buffer/history"
	"github.com/samuelfneumann/mtppo/initwfn"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/timestep"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

const (
	envs  = 3
	steps = 6
)

func newModel(t *testing.T) *network.LinearTrace {
	t.Helper()
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatal(err)
	}
	inputs := []network.Input{
		{Name: "position", Size: 3},
		{Name: "reward", Size: 1},
	}
	m, err := network.NewLinearTrace(inputs, 3, 0.7, init, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range m.Learnables() {
		d := p.Data()
		for j := range d {
			d[j] += 0.05 * float64(i+1) * math.Cos(float64(3*j+1))
		}
	}
	return m
}

func randomObs(rng *rand.Rand) timestep.Observation {
	position := mat.NewDense(envs, 3, nil)
	reward := mat.NewDense(envs, 1, nil)
	for e := 0; e < envs; e++ {
		for j := 0; j < 3; j++ {
			position.Set(e, j, rng.Float64())
		}
		reward.Set(e, 0, rng.NormFloat64())
	}
	return timestep.Observation{"position": position, "reward": reward}
}

// rollout fills a history by acting uniformly at random with m
func rollout(t *testing.T, m network.Model, seed uint64) *history.Buffer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	h, err := history.New(envs, steps+1)
	if err != nil {
		t.Fatal(err)
	}

	obs := randomObs(rng)
	hidden := m.InitHidden(envs)
	if err := h.AppendObs(obs, nil, nil, hidden); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < steps; i++ {
		live, err := hidden.ResetWhere(h.Terminal(h.Len()-1),
			m.InitHidden(envs))
		if err != nil {
			t.Fatal(err)
		}
		out, err := m.Forward(obs, live)
		if err != nil {
			t.Fatal(err)
		}

		actions := make([]int, envs)
		rewards := make([]float64, envs)
		terminals := make([]bool, envs)
		for e := range actions {
			actions[e] = rng.Intn(m.NumActions())
			rewards[e] = rng.NormFloat64()
			terminals[e] = rng.Float64() < 0.25
		}
		if err := h.AppendAction(actions); err != nil {
			t.Fatal(err)
		}

		hidden = out.Hidden
		obs = randomObs(rng)
		if err := h.AppendObs(obs, rewards, terminals, hidden); err != nil {
			t.Fatal(err)
		}
	}
	return h
}

// perturb moves every parameter of m by a small deterministic amount
func perturb(m network.Trainable, scale float64) {
	for i, p := range m.Learnables() {
		d := p.Data()
		for j := range d {
			d[j] += scale * math.Sin(float64(7*i+j+1))
		}
	}
}

// checkGradient compares the accumulated gradient of m against central
// finite differences of loss
func checkGradient(t *testing.T, m network.Trainable, loss func() float64) {
	t.Helper()
	const eps = 1e-6
	for _, p := range m.Learnables() {
		data, grad := p.Data(), p.GradData()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			up := loss()
			data[i] = orig - eps
			down := loss()
			data[i] = orig

			numeric := (up - down) / (2 * eps)
			if math.Abs(numeric-grad[i]) > 1e-5*math.Max(1, math.Abs(numeric)) {
				t.Errorf("%v[%d]: want gradient %v have %v", p.Name(), i,
					numeric, grad[i])
			}
		}
	}
}

func TestRecurrentGradient(t *testing.T) {
	Convey("Given a trajectory and a perturbed model", t, func() {
		m := newModel(t)
		h := rollout(t, m, 1)
		c := DefaultConfig()

		check := func(c Config) {
			f, err := freeze(h, m, c, true)
			So(err, ShouldBeNil)
			perturb(m, 0.02)

			r, err := recurrentEpoch(h, m, c, f)
			So(err, ShouldBeNil)
			m.ZeroGrad()
			So(r.Backward(1), ShouldBeNil)

			checkGradient(t, m, func() float64 {
				r, err := recurrentEpoch(h, m, c, f)
				if err != nil {
					t.Fatal(err)
				}
				return r.Loss
			})
		}

		Convey("The epoch gradient matches finite differences", func() {
			check(c)
		})

		Convey("The gradient with a clipped value loss matches finite "+
			"differences", func() {
			c.ClipVFLoss = 0.005
			check(c)
		})
	})
}

func TestFlatGradient(t *testing.T) {
	m := newModel(t)
	h := rollout(t, m, 2)
	c := DefaultConfig()

	f, err := freeze(h, m, c, false)
	if err != nil {
		t.Fatal(err)
	}
	perturb(m, 0.02)

	indices := []int{0, 4, 5, 11, 17}
	r, err := minibatch(h, m, c, f, indices)
	if err != nil {
		t.Fatal(err)
	}
	if r.Samples != len(indices) {
		t.Errorf("samples: want %d have %d", len(indices), r.Samples)
	}
	m.ZeroGrad()
	if err := r.Backward(1); err != nil {
		t.Fatal(err)
	}

	checkGradient(t, m, func() float64 {
		r, err := minibatch(h, m, c, f, indices)
		if err != nil {
			t.Fatal(err)
		}
		return r.Loss
	})
}

func TestRecurrentEpochs(t *testing.T) {
	Convey("Given a trajectory and an unchanged model", t, func() {
		m := newModel(t)
		h := rollout(t, m, 3)
		c := DefaultConfig()

		it, err := NewRecurrent(h, m, c)
		So(err, ShouldBeNil)

		Convey("Every epoch is produced", func() {
			for it.Next() {
				r := it.Record()
				So(r.Samples, ShouldEqual, (steps)*envs)

				// The policy is unchanged, so ratios are all one and
				// normalized advantages have zero mean
				So(r.ApproxKL, ShouldAlmostEqual, 0, 1e-12)
				So(r.PolicyLoss, ShouldAlmostEqual, 0, 1e-9)
				So(r.EntropyLoss, ShouldBeLessThan, 0)
			}
			So(it.Err(), ShouldBeNil)
			So(it.Count(), ShouldEqual, c.Epochs)
			So(it.EarlyStopped(), ShouldBeFalse)
		})

		Convey("The final hidden state is the one entering the last step", func() {
			So(it.Next(), ShouldBeTrue)
			hidden := it.Record().Hidden
			So(mat.EqualApprox(hidden[0], h.Hidden(h.Len()-1)[0], 1e-12),
				ShouldBeTrue)
		})
	})
}

func TestTargetKL(t *testing.T) {
	m := newModel(t)
	h := rollout(t, m, 4)
	c := DefaultConfig()
	c.Epochs = 10
	c.TargetKL = 1e-12

	it, err := NewRecurrent(h, m, c)
	if err != nil {
		t.Fatal(err)
	}
	for it.Next() {
		m.ZeroGrad()
		if err := it.Record().Backward(1); err != nil {
			t.Fatal(err)
		}
		for _, p := range m.Learnables() {
			d, g := p.Data(), p.GradData()
			for i := range d {
				d[i] -= 0.5 * g[i]
			}
		}
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}

	// The first epoch sees an unchanged policy, the second exceeds the
	// target
	if it.Count() != 2 {
		t.Errorf("count: want 2 have %d", it.Count())
	}
	if !it.EarlyStopped() {
		t.Errorf("expected iteration to stop early")
	}
}

func TestFlatMinibatches(t *testing.T) {
	m := newModel(t)
	h := rollout(t, m, 5)
	c := DefaultConfig()
	c.MinibatchSize = 4
	c.NumMinibatches = 9

	it, err := NewFlat(h, m, c, 1)
	if err != nil {
		t.Fatal(err)
	}
	for it.Next() {
		if s := it.Record().Samples; s != 4 {
			t.Errorf("samples: want 4 have %d", s)
		}
		if it.Record().Hidden != nil {
			t.Errorf("flat records should not carry a hidden state")
		}
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if it.Count() != 9 {
		t.Errorf("count: want 9 have %d", it.Count())
	}

	c.MinibatchSize = steps*envs + 1
	if _, err := NewFlat(h, m, c, 1); err == nil {
		t.Errorf("newFlat: expected an error for an oversized minibatch")
	}
}

func TestMinibatchesWithoutReplacement(t *testing.T) {
	const batch, size, count = 10, 3, 8
	mb, err := NewMinibatches(batch, size, count, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatal(err)
	}

	perPass := batch / size
	var seen map[int]bool
	n := 0
	for idx, ok := mb.Next(); ok; idx, ok = mb.Next() {
		if n%perPass == 0 {
			seen = make(map[int]bool)
		}
		if len(idx) != size {
			t.Fatalf("minibatch %d: want size %d have %d", n, size, len(idx))
		}
		for _, i := range idx {
			if i < 0 || i >= batch {
				t.Errorf("minibatch %d: index %d out of range", n, i)
			}
			if seen[i] {
				t.Errorf("minibatch %d: index %d repeated within a pass", n, i)
			}
			seen[i] = true
		}
		n++
	}
	if n != count {
		t.Errorf("count: want %d have %d", count, n)
	}
}

// evalObjective evaluates the objective on a batch of two identical
// rows of logits and values held as parameters. It returns the summed
// policy and value losses and the gradient of
// policy + c.ValueCoeff * value with respect to the first row.
func evalObjective(t *testing.T, logits []float64, value float64,
	s samples, c Config) (float64, float64, []float64, float64) {
	t.Helper()
	logitsP := network.NewParam("logits", nil, 2, len(logits))
	valueP := network.NewParam("value", nil, 2)
	if err := logitsP.Set(append(append([]float64(nil), logits...),
		logits...)); err != nil {
		t.Fatal(err)
	}
	if err := valueP.Set([]float64{value, value}); err != nil {
		t.Fatal(err)
	}

	twice := samples{
		actions:    []int{s.actions[0], s.actions[0]},
		oldLogProb: []float64{s.oldLogProb[0], s.oldLogProb[0]},
		oldValue:   []float64{s.oldValue[0], s.oldValue[0]},
		advantage:  []float64{s.advantage[0], s.advantage[0]},
		returns:    []float64{s.returns[0], s.returns[0]},
	}

	g := network.NewGraph(logitsP, valueP)
	out := network.Nodes{Logits: g.Param(logitsP), Value: g.Param(valueP)}
	tm, err := objective(g, out, twice, c)
	if err != nil {
		t.Fatal(err)
	}
	cost := G.Must(G.Add(tm.policy, G.Must(G.Mul(tm.value,
		g.Scalar(c.ValueCoeff)))))

	var policy, valueLoss G.Value
	G.Read(tm.policy, &policy)
	G.Read(tm.value, &valueLoss)
	if err := g.Grad(cost); err != nil {
		t.Fatal(err)
	}
	grads, err := g.Run()
	if err != nil {
		t.Fatal(err)
	}
	return network.Value(policy) / 2, network.Value(valueLoss) / 2,
		grads[0][:len(logits)], grads[1][0]
}

func TestPolicyClipping(t *testing.T) {
	c := Config{}
	s := samples{
		actions:    []int{0},
		oldLogProb: []float64{math.Log(0.5) - 0.5},
		oldValue:   []float64{0},
		advantage:  []float64{1},
		returns:    []float64{0},
	}

	// A positive advantage with a ratio above 1 + ε is clipped and
	// receives no gradient
	policy, _, dLogits, _ := evalObjective(t, []float64{0, 0}, 0, s, c)
	if want := -(1 + ClipRatio); math.Abs(policy-want) > 1e-12 {
		t.Errorf("clipped policy loss: want %v have %v", want, policy)
	}
	for _, g := range dLogits {
		if g != 0 {
			t.Errorf("clipped policy gradient: want 0 have %v", g)
		}
	}

	// A negative advantage with the same ratio is not clipped
	s.advantage[0] = -1
	policy, _, dLogits, _ = evalObjective(t, []float64{0, 0}, 0, s, c)
	ratio := math.Exp(0.5)
	if math.Abs(policy-ratio) > 1e-12 {
		t.Errorf("unclipped policy loss: want %v have %v", ratio, policy)
	}
	if want := ratio * 0.5; math.Abs(dLogits[0]-want) > 1e-12 {
		t.Errorf("unclipped policy gradient: want %v have %v", want,
			dLogits[0])
	}
}

func TestValueClipping(t *testing.T) {
	s := samples{
		actions:    []int{1},
		oldLogProb: []float64{math.Log(0.5)},
		oldValue:   []float64{0},
		advantage:  []float64{0},
		returns:    []float64{1},
	}
	logits := []float64{0, 0}

	Convey("Given a value prediction far from the old value", t, func() {
		Convey("The unclipped loss is half the squared error", func() {
			c := Config{ValueCoeff: 0.5}
			_, value, _, dValue := evalObjective(t, logits, -0.5, s, c)
			So(value, ShouldAlmostEqual, 0.5*1.5*1.5, 1e-12)
			So(dValue, ShouldAlmostEqual, 0.5*-1.5, 1e-12)
		})

		Convey("The clipped loss takes the larger error", func() {
			c := Config{ValueCoeff: 0.5, ClipVFLoss: 0.2}
			_, value, _, dValue := evalObjective(t, logits, -0.5, s, c)

			// The clipped prediction -0.2 is closer to the return, so
			// the unclipped error is used
			So(value, ShouldAlmostEqual, 0.5*1.5*1.5, 1e-12)
			So(dValue, ShouldAlmostEqual, 0.5*-1.5, 1e-12)
		})

		Convey("Overshooting the return is clipped", func() {
			c := Config{ValueCoeff: 0.5, ClipVFLoss: 0.2}
			_, value, _, dValue := evalObjective(t, logits, 0.5, s, c)
			So(value, ShouldAlmostEqual, 0.5*0.8*0.8, 1e-12)
			So(dValue, ShouldAlmostEqual, 0, 1e-12)
		})

		Convey("Inside the clipping range both losses agree", func() {
			c := Config{ValueCoeff: 0.5, ClipVFLoss: 0.2}
			_, value, _, dValue := evalObjective(t, logits, 0.1, s, c)
			So(value, ShouldAlmostEqual, 0.5*0.9*0.9, 1e-12)
			So(dValue, ShouldAlmostEqual, 0.5*-0.9, 1e-12)
		})
	})
}
