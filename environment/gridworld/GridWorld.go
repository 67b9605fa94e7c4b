// Package gridworld implements a multi-trial 2D gridworld fetch
// environment. On each trial the agent is placed in a square room with
// several objects, one of which is the target. Reaching any object ends
// the trial. The target stays the same for the whole episode but is not
// observed, so it must be inferred from the rewards of earlier trials.
package gridworld

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/timestep"
	"golang.org/x/exp/rand"
)

// Actions
const (
	Left = iota
	Right
	Up
	Down
	numActions
)

// Config configures a GridWorld. The side length of the room is
// sampled in [MinSize, MaxSize] at the start of each episode.
// Observations are laid out on a MaxSize x MaxSize grid.
type Config struct {
	MinSize    int
	MaxSize    int
	NumTrials  int
	NumObjects int

	// Episodes are truncated after
	// MaxStepsMultiplier * MaxSize * MaxSize * NumTrials steps
	MaxStepsMultiplier int

	// IncludeReward adds the reward of the last step to observations
	IncludeReward bool
}

// DefaultConfig returns the default GridWorld configuration
func DefaultConfig() Config {
	return Config{
		MinSize:            4,
		MaxSize:            6,
		NumTrials:          100,
		NumObjects:         2,
		MaxStepsMultiplier: 5,
		IncludeReward:      true,
	}
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.MinSize <= 0 || c.MaxSize < c.MinSize {
		return fmt.Errorf("validate: illegal room sizes [%d, %d]", c.MinSize,
			c.MaxSize)
	}
	if c.NumObjects <= 0 {
		return fmt.Errorf("validate: need at least one object, have %d",
			c.NumObjects)
	}
	if c.MinSize*c.MinSize <= c.NumObjects {
		return fmt.Errorf("validate: room of size %d cannot hold the agent "+
			"and %d objects", c.MinSize, c.NumObjects)
	}
	if c.NumTrials <= 0 {
		return fmt.Errorf("validate: need at least one trial, have %d",
			c.NumTrials)
	}
	if c.MaxStepsMultiplier < 0 {
		return fmt.Errorf("validate: negative step multiplier %d",
			c.MaxStepsMultiplier)
	}
	return nil
}

// GridWorld represents a multi-trial fetch gridworld
//
// The room is represented as a flattened matrix, but in this
// implementation only the room dimensions, the current agent position,
// and the object positions are tracked
type GridWorld struct {
	config  Config
	rng     *rand.Rand
	starter *environment.CategoricalStarter
	ender   environment.StepLimit

	size     int // current room side length
	position int
	fetch

	steps      int
	done       bool
	lastReward float64
}

// New creates a new GridWorld. The GridWorld must be Reset before use.
func New(c Config, seed uint64) (*GridWorld, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	limit := c.MaxStepsMultiplier * c.MaxSize * c.MaxSize * c.NumTrials
	g := &GridWorld{
		config:  c,
		starter: environment.NewCategoricalStarter(
			[]int{c.MaxSize - c.MinSize + 1, c.NumObjects}, seed),
		ender: environment.NewStepLimit(limit),
		done:  true,
	}
	g.Seed(seed)
	return g, nil
}

// Seed reseeds the GridWorld
func (g *GridWorld) Seed(seed uint64) {
	g.rng = rand.New(rand.NewSource(seed))
	g.starter.Seed(seed + 1)
}

// Reset starts a new episode
func (g *GridWorld) Reset() (timestep.TimeStep, error) {
	start := g.starter.Start()
	g.size = g.config.MinSize + start[0]
	g.fetch = fetch{target: start[1]}
	g.steps = 0
	g.done = false
	g.lastReward = 0
	g.place()

	return timestep.New(timestep.First, 0, g.observation(), 0), nil
}

// Step takes one environmental step given an action
func (g *GridWorld) Step(action int) (timestep.TimeStep, error) {
	if g.done {
		return timestep.TimeStep{}, fmt.Errorf("step: episode has ended, " +
			"reset the environment first")
	}
	if action < 0 || action >= numActions {
		return timestep.TimeStep{}, fmt.Errorf("step: illegal action %d",
			action)
	}

	x, y := g.Coordinates()
	switch action {
	case Left:
		if x > 0 {
			x--
		}
	case Right:
		if x < g.size-1 {
			x++
		}
	case Up:
		if y < g.size-1 {
			y++
		}
	case Down:
		if y > 0 {
			y--
		}
	}
	g.position = cToInd(x, y, g.size)
	g.steps++

	reward := g.visit(g.position)
	if g.ended && g.trials < g.config.NumTrials {
		g.place()
	}
	g.lastReward = reward

	step := timestep.New(timestep.Mid, reward, g.observation(), g.steps)
	if g.trials >= g.config.NumTrials {
		step.End(false)
	} else {
		g.ender.End(&step)
	}

	if step.Last() {
		g.done = true
		step.Info.Final = map[string]float64{
			"trials":    float64(g.trials),
			"successes": float64(g.successes),
		}
	}
	return step, nil
}

// NumActions returns the number of actions
func (g *GridWorld) NumActions() int {
	return numActions
}

// ObservationSpec returns the observation specification
func (g *GridWorld) ObservationSpec() []environment.Spec {
	cells := g.config.MaxSize * g.config.MaxSize
	specs := []environment.Spec{
		environment.NewSpec("position", cells, 0, 1),
		environment.NewSpec("objects", cells, 0, 1),
	}
	if g.config.IncludeReward {
		specs = append(specs, environment.NewSpec("reward", 1, -1, 1))
	}
	return specs
}

// Coordinates returns the (x, y) coordinates of the agent
func (g *GridWorld) Coordinates() (int, int) {
	return indToC(g.position, g.size)
}

// Size returns the side length of the current room
func (g *GridWorld) Size() int {
	return g.size
}

// Distance returns the Manhattan distance from the agent to the target
func (g *GridWorld) Distance() int {
	return distance(g.position, g.objects[g.target], g.size)
}

func (g *GridWorld) String() string {
	x, y := g.Coordinates()
	return fmt.Sprintf("GridWorld | At: (%d, %d)  |  Trial: %d/%d  |  "+
		"Bounds: (%d, %d)", x, y, g.trials, g.config.NumTrials, g.size,
		g.size)
}

// observation lays the room out on the MaxSize x MaxSize grid
func (g *GridWorld) observation() timestep.Features {
	cells := g.config.MaxSize * g.config.MaxSize
	position := make([]float64, cells)
	objects := make([]float64, cells)

	x, y := g.Coordinates()
	position[cToInd(x, y, g.config.MaxSize)] = 1.0
	for _, o := range g.objects {
		ox, oy := indToC(o, g.size)
		objects[cToInd(ox, oy, g.config.MaxSize)] = 1.0
	}

	obs := timestep.Features{"position": position, "objects": objects}
	if g.config.IncludeReward {
		obs["reward"] = []float64{g.lastReward}
	}
	return obs
}

func cToInd(x, y, c int) int {
	return y*c + x
}

func indToC(i, c int) (int, int) {
	y := i / c
	x := i - (y * c)
	return x, y
}

func distance(i, j, c int) int {
	xi, yi := indToC(i, c)
	xj, yj := indToC(j, c)
	return abs(xi-xj) + abs(yi-yj)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
