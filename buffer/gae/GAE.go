// Package gae implements generalized advantage estimation over
// trajectories collected from a vector of environments
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Estimate computes GAE(λ) advantages following
// https://arxiv.org/abs/1506.02438 for a trajectory of n steps over a
// vector of environments. values[t][e] is the value estimate of the
// observation at step t in environment e, rewards[t][e] is the reward
// received on arriving at step t, and terminals[t][e] is whether the
// episode ended on arriving at step t, in which case the observation at
// step t begins a new episode. rewards[0] and terminals[0] are unused.
//
// Advantages are returned for steps [0, n-2]:
//
//	δ_t = r_{t+1} + γ V_{t+1} (1 - terminal_{t+1}) - V_t
//	A_t = δ_t + γ λ (1 - terminal_{t+1}) A_{t+1}
//
// with A_{n-1} = 0, so that the last step is used only to bootstrap.
func Estimate(values, rewards [][]float64, terminals [][]bool, discount,
	lambda float64) ([][]float64, error) {
	n := len(values)
	if n < 2 {
		return nil, fmt.Errorf("estimate: need at least 2 steps, have %d", n)
	}
	if len(rewards) != n || len(terminals) != n {
		return nil, fmt.Errorf("estimate: have %d values, %d rewards, and "+
			"%d terminals", n, len(rewards), len(terminals))
	}

	envs := len(values[0])
	advantages := make([][]float64, n-1)
	next := make([]float64, envs) // A_{t+1}
	for t := n - 2; t >= 0; t-- {
		if len(values[t+1]) != envs || len(rewards[t+1]) != envs ||
			len(terminals[t+1]) != envs || len(values[t]) != envs {
			return nil, fmt.Errorf("estimate: step %d does not have %d "+
				"environments", t, envs)
		}

		adv := make([]float64, envs)
		for e := 0; e < envs; e++ {
			notDone := 1.0
			if terminals[t+1][e] {
				notDone = 0
			}
			delta := rewards[t+1][e] + discount*values[t+1][e]*notDone -
				values[t][e]
			adv[e] = delta + discount*lambda*notDone*next[e]
		}
		next = adv
		advantages[t] = adv
	}
	return advantages, nil
}

// Returns returns advantages + values for each step of advantages
func Returns(advantages, values [][]float64) [][]float64 {
	returns := make([][]float64, len(advantages))
	for t := range advantages {
		returns[t] = make([]float64, len(advantages[t]))
		floats.AddTo(returns[t], advantages[t], values[t])
	}
	return returns
}

// Normalize standardizes advantages, in place, to mean 0 and standard
// deviation 1 across all steps and environments
func Normalize(advantages [][]float64) {
	flat := Flatten(advantages)
	if len(flat) < 2 {
		return
	}
	mean := stat.Mean(flat, nil)
	std := stat.StdDev(flat, nil) + 1e-8

	for _, adv := range advantages {
		floats.AddConst(-mean, adv)
		floats.Scale(1/std, adv)
	}
}

// Flatten concatenates the rows of x in order
func Flatten(x [][]float64) []float64 {
	size := 0
	for _, row := range x {
		size += len(row)
	}
	flat := make([]float64, 0, size)
	for _, row := range x {
		flat = append(flat, row...)
	}
	return flat
}
