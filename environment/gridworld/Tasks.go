package gridworld

import "github.com/samuelfneumann/mtppo/environment"

// Trial rewards
const (
	TargetReward = 1.0
	WrongReward  = -1.0
)

// fetch tracks the trials of a fetch episode
type fetch struct {
	objects []int // cell of each object
	target  int   // index of the target object

	trials     int
	successes  int
	trialSteps int
	shortest   int

	ended  bool
	result environment.TrialResult
}

// place puts the agent and the objects at new random cells of the room
// and starts a new trial
func (g *GridWorld) place() {
	perm := g.rng.Perm(g.size * g.size)
	g.position = perm[0]
	g.objects = append(g.objects[:0], perm[1:1+g.config.NumObjects]...)
	g.trialSteps = 0
	g.shortest = g.Distance()
}

// visit returns the reward for arriving at cell and records whether a
// trial ended
func (g *GridWorld) visit(cell int) float64 {
	g.trialSteps++
	g.ended = false

	for i, o := range g.objects {
		if o != cell {
			continue
		}
		success := i == g.target
		g.ended = true
		g.trials++
		g.result = environment.TrialResult{
			Success:  success,
			Steps:    g.trialSteps,
			Shortest: g.shortest,
		}
		if success {
			g.successes++
			return TargetReward
		}
		return WrongReward
	}
	return 0
}

// TrialEnded returns whether the last step finished a trial, and if so,
// the result of the trial
func (g *GridWorld) TrialEnded() (environment.TrialResult, bool) {
	return g.result, g.ended
}

// Target returns the index of the target object
func (g *GridWorld) Target() int {
	return g.target
}
