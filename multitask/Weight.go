// Package multitask implements strategies for weighting the losses of
// several tasks trained together
package multitask

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Decay is the decay of the exponential moving average of episode
// returns used by Dynamic
const Decay = 0.99

// Weighter converts per-task episode returns into a weight for the loss
// of each task
type Weighter interface {
	// Step updates the Weighter with the episode returns completed by
	// each task since the last call
	Step(returns [][]float64)

	// Weight returns the current weight of each task
	Weight() []float64
}

// Static is a fixed weighting of tasks
type Static struct {
	weight []float64
}

// NewStatic returns a new Static Weighter. The weights are normalized
// to sum to 1.
func NewStatic(weight []float64) (*Static, error) {
	if len(weight) == 0 {
		return nil, fmt.Errorf("newStatic: no weights")
	}
	for i, w := range weight {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("newStatic: weight %d is %v, weights "+
				"must be non-negative", i, w)
		}
	}
	sum := floats.Sum(weight)
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("newStatic: weights sum to %v", sum)
	}

	w := make([]float64, len(weight))
	floats.ScaleTo(w, 1/sum, weight)
	return &Static{w}, nil
}

// Step does nothing
func (s *Static) Step([][]float64) {}

// Weight returns the weight of each task
func (s *Static) Weight() []float64 {
	return append([]float64(nil), s.weight...)
}

// Dynamic weights tasks by how far their recent performance is below
// the best achievable score. Each task's score is an exponential moving
// average of its episode returns, starting at the score of a random
// policy. The weight of the tasks is
//
//	softmax(-(score - random) / (max - random) / temperature)
//
// so that tasks furthest below their maximum score receive the most
// weight.
type Dynamic struct {
	maxScore    []float64
	randomScore []float64
	temperature float64
	score       []float64
}

// NewDynamic returns a new Dynamic Weighter
func NewDynamic(maxScore, randomScore []float64,
	temperature float64) (*Dynamic, error) {
	if len(maxScore) == 0 || len(maxScore) != len(randomScore) {
		return nil, fmt.Errorf("newDynamic: have %d max scores and %d "+
			"random scores", len(maxScore), len(randomScore))
	}
	if temperature <= 0 {
		return nil, fmt.Errorf("newDynamic: temperature must be positive, "+
			"have %v", temperature)
	}
	for i := range maxScore {
		if maxScore[i] == randomScore[i] {
			return nil, fmt.Errorf("newDynamic: task %d has equal max and "+
				"random scores %v", i, maxScore[i])
		}
	}

	return &Dynamic{
		maxScore:    append([]float64(nil), maxScore...),
		randomScore: append([]float64(nil), randomScore...),
		temperature: temperature,
		score:       append([]float64(nil), randomScore...),
	}, nil
}

// Step folds each task's new episode returns into its score
func (d *Dynamic) Step(returns [][]float64) {
	for i := range d.score {
		if i >= len(returns) {
			break
		}
		for _, r := range returns[i] {
			d.score[i] = d.score[i]*Decay + r*(1-Decay)
		}
	}
}

// Score returns the current score of each task
func (d *Dynamic) Score() []float64 {
	return append([]float64(nil), d.score...)
}

// Weight returns the weight of each task
func (d *Dynamic) Weight() []float64 {
	logits := make([]float64, len(d.score))
	for i := range logits {
		rel := (d.score[i] - d.randomScore[i]) /
			(d.maxScore[i] - d.randomScore[i])
		logits[i] = -rel / d.temperature
	}

	lse := floats.LogSumExp(logits)
	for i := range logits {
		logits[i] = math.Exp(logits[i] - lse)
	}
	return logits
}
