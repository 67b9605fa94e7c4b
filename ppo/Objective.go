package ppo

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mtppo/network"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// samples holds the frozen per-sample quantities the objective is
// computed against
type samples struct {
	actions    []int
	oldLogProb []float64
	oldValue   []float64
	advantage  []float64
	returns    []float64
}

// terms holds graph nodes summing the PPO loss terms over one or more
// batches of samples
type terms struct {
	policy, value, entropy, approxKL, stateValue *G.Node
}

// add returns the sum of t and o
func (t terms) add(o terms) (terms, error) {
	if t.policy == nil {
		return o, nil
	}
	var err error
	sum := func(a, b *G.Node) *G.Node {
		if err != nil {
			return nil
		}
		var n *G.Node
		n, err = G.Add(a, b)
		return n
	}
	out := terms{
		policy:     sum(t.policy, o.policy),
		value:      sum(t.value, o.value),
		entropy:    sum(t.entropy, o.entropy),
		approxKL:   sum(t.approxKL, o.approxKL),
		stateValue: sum(t.stateValue, o.stateValue),
	}
	if err != nil {
		return terms{}, fmt.Errorf("add: %w", err)
	}
	return out, nil
}

// objective adds to g the PPO loss terms of one step of a model,
// summed over the rows of its outputs
func objective(g *network.Graph, out network.Nodes, s samples,
	c Config) (terms, error) {
	shape := out.Logits.Shape()
	rows, actions := shape[0], shape[1]
	if out.Value.Shape()[0] != rows || len(s.actions) != rows {
		return terms{}, fmt.Errorf("objective: have %d logits, %d values, "+
			"and %d actions", rows, out.Value.Shape()[0], len(s.actions))
	}

	oneHot := mat.NewDense(rows, actions, nil)
	for i, a := range s.actions {
		if a < 0 || a >= actions {
			return terms{}, fmt.Errorf("objective: action %d out of range "+
				"[0, %d)", a, actions)
		}
		oneHot.Set(i, a, 1)
	}

	lse, err := logSumExp(out.Logits)
	if err != nil {
		return terms{}, fmt.Errorf("objective: %w", err)
	}
	logProbs := G.Must(G.BroadcastSub(out.Logits, lse, nil, []byte{1}))
	probs := G.Must(G.Exp(logProbs))
	entropy := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(probs,
		logProbs)), 1))))

	// Log-probability of the actions taken
	logProb := G.Must(G.HadamardProd(g.Matrix("actions", oneHot), logProbs))
	logProb = G.Must(G.Sum(logProb, 1))

	// Clipped surrogate
	logRatio := G.Must(G.Sub(logProb, g.Vector("old_log_prob",
		s.oldLogProb)))
	ratio := G.Must(G.Exp(logRatio))
	adv := g.Vector("advantage", s.advantage)
	unclipped := G.Must(G.Neg(G.Must(G.HadamardProd(adv, ratio))))
	clippedRatio, err := clip(g, ratio, 1-ClipRatio, 1+ClipRatio)
	if err != nil {
		return terms{}, fmt.Errorf("objective: %w", err)
	}
	clipped := G.Must(G.Neg(G.Must(G.HadamardProd(adv, clippedRatio))))
	policy, err := maximum(g, unclipped, clipped)
	if err != nil {
		return terms{}, fmt.Errorf("objective: %w", err)
	}

	// Value loss
	returns := g.Vector("returns", s.returns)
	value := G.Must(G.Square(G.Must(G.Sub(out.Value, returns))))
	if c.ClipVFLoss > 0 {
		old := g.Vector("old_value", s.oldValue)
		diff, err := clip(g, G.Must(G.Sub(out.Value, old)), -c.ClipVFLoss,
			c.ClipVFLoss)
		if err != nil {
			return terms{}, fmt.Errorf("objective: %w", err)
		}
		vClipped := G.Must(G.Sub(G.Must(G.Add(old, diff)), returns))
		if value, err = maximum(g, value, G.Must(G.Square(vClipped))); err !=
			nil {
			return terms{}, fmt.Errorf("objective: %w", err)
		}
	}
	value = G.Must(G.Mul(G.Must(G.Sum(value)), g.Scalar(0.5)))

	// Approximate KL divergence (r - 1) - log(r)
	kl := G.Must(G.Sub(G.Must(G.Sub(ratio, g.Scalar(1))), logRatio))

	return terms{
		policy:     G.Must(G.Sum(policy)),
		value:      value,
		entropy:    G.Must(G.Sum(entropy)),
		approxKL:   G.Must(G.Sum(kl)),
		stateValue: G.Must(G.Sum(out.Value)),
	}, nil
}

// evaluate differentiates the total loss of sums, averaged over n
// samples, with respect to the parameters of m and runs g. The
// returned Record accumulates the computed gradient into m on Backward.
// If hidden is not nil, the value of each hidden node is returned in
// the Record.
func evaluate(g *network.Graph, m network.Trainable, sums terms,
	hidden []*G.Node, c Config, n float64) (*Record, error) {
	scale := g.Scalar(1 / n)
	loss := G.Must(G.Sub(sums.policy, G.Must(G.Mul(sums.entropy,
		g.Scalar(c.EntropyCoeff)))))
	loss = G.Must(G.Add(loss, G.Must(G.Mul(sums.value,
		g.Scalar(c.ValueCoeff)))))
	loss = G.Must(G.Mul(loss, scale))

	var lossVal, policyVal, valueVal, entropyVal, klVal, stateVal G.Value
	G.Read(loss, &lossVal)
	G.Read(sums.policy, &policyVal)
	G.Read(sums.value, &valueVal)
	G.Read(sums.entropy, &entropyVal)
	G.Read(sums.approxKL, &klVal)
	G.Read(sums.stateValue, &stateVal)
	hiddenVal := make([]G.Value, len(hidden))
	for l, h := range hidden {
		G.Read(h, &hiddenVal[l])
	}

	if err := g.Grad(loss); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	grads, err := g.Run()
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	entropy := network.Value(entropyVal) / n
	r := &Record{
		Loss:        network.Value(lossVal),
		PolicyLoss:  network.Value(policyVal) / n,
		ValueLoss:   network.Value(valueVal) / n,
		EntropyLoss: -entropy,
		ApproxKL:    network.Value(klVal) / n,
		StateValue:  network.Value(stateVal) / n,
		Entropy:     entropy,
		Samples:     int(n),
		backward: func(scale float64) error {
			return grads.AccumulateTo(m.Learnables(), scale)
		},
	}
	if hidden != nil {
		r.Hidden = make(network.Hidden, len(hiddenVal))
		for l, v := range hiddenVal {
			r.Hidden[l] = network.Dense(v)
		}
	}
	return r, nil
}

// logSumExp returns the log of the sum of the exponentials of each row
// of logits
func logSumExp(logits *G.Node) (*G.Node, error) {
	rowMax, err := G.Max(logits, 1)
	if err != nil {
		return nil, err
	}

	exponent, err := G.BroadcastSub(logits, rowMax, nil, []byte{1})
	if err != nil {
		return nil, err
	}
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, 1))
	log := G.Must(G.Log(sum))

	return G.Add(rowMax, log)
}

// maximum returns the element-wise maximum of a and b as
// (a + b + |a - b|) / 2. At ties the gradient is split evenly between
// a and b.
func maximum(g *network.Graph, a, b *G.Node) (*G.Node, error) {
	diff, err := G.Sub(a, b)
	if err != nil {
		return nil, err
	}
	sum := G.Must(G.Add(G.Must(G.Add(a, b)), G.Must(G.Abs(diff))))
	return G.Mul(sum, g.Scalar(0.5))
}

// minimum returns the element-wise minimum of a and b as
// (a + b - |a - b|) / 2
func minimum(g *network.Graph, a, b *G.Node) (*G.Node, error) {
	diff, err := G.Sub(a, b)
	if err != nil {
		return nil, err
	}
	sum := G.Must(G.Sub(G.Must(G.Add(a, b)), G.Must(G.Abs(diff))))
	return G.Mul(sum, g.Scalar(0.5))
}

// clip clips each element of x to [lo, hi]
func clip(g *network.Graph, x *G.Node, lo, hi float64) (*G.Node, error) {
	lower, err := maximum(g, x, g.Scalar(lo))
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	return minimum(g, lower, g.Scalar(hi))
}

// logProb returns the log-probability of each action under the
// categorical distribution with the given logits, and the entropy of
// each row's distribution
func logProb(logits *mat.Dense, actions []int) ([]float64, []float64) {
	rows, _ := logits.Dims()
	lp := make([]float64, rows)
	entropy := make([]float64, rows)
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		for _, l := range row {
			entropy[i] -= math.Exp(l-lse) * (l - lse)
		}
		if actions != nil {
			lp[i] = row[actions[i]] - lse
		}
	}
	return lp, entropy
}
