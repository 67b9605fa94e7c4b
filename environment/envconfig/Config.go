// Package envconfig provides named presets of environment
// configurations. Presets are built from a base configuration and a
// list of overrides, in the manner of an inheritance chain.
package envconfig

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/environment/gridworld"
	"github.com/samuelfneumann/mtppo/environment/vector"
	"github.com/samuelfneumann/mtppo/environment/wrappers"
	"github.com/samuelfneumann/mtppo/noise"
)

// ErrUnknown is returned when a preset is requested by an unknown name
var ErrUnknown = errors.New("unknown environment preset")

// Config implements a specific configuration of the fetch gridworld
// and its shaped reward. A nil Shaped means no shaped reward is given.
type Config struct {
	Name      string
	GridWorld gridworld.Config
	Shaped    *wrappers.ShapedConfig `json:",omitempty"`
}

// Override alters a Config
type Override func(*Config)

// Inherit returns a copy of c named name with the overrides applied
func (c Config) Inherit(name string, overrides ...Override) Config {
	c.Name = name
	if c.Shaped != nil {
		shaped := *c.Shaped
		c.Shaped = &shaped
	}
	for _, o := range overrides {
		o(&c)
	}
	return c
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if err := c.GridWorld.Validate(); err != nil {
		return fmt.Errorf("validate: %v: %w", c.Name, err)
	}
	if c.Shaped != nil {
		if err := c.Shaped.Validate(); err != nil {
			return fmt.Errorf("validate: %v: %w", c.Name, err)
		}
	}
	return nil
}

// Create returns a single environment described by the Config
func (c Config) Create(seed uint64) (environment.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	g, err := gridworld.New(c.GridWorld, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	if c.Shaped == nil {
		return g, nil
	}

	s, err := wrappers.NewShapedReward(g, *c.Shaped, seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return s, nil
}

// Vector returns a vector of numEnvs environments described by the
// Config, labelled with label. Environment i is seeded with seed + i.
func (c Config) Vector(numEnvs int, label string,
	seed uint64) (*vector.Sync, error) {
	envs := make([]environment.Environment, numEnvs)
	for i := range envs {
		var err error
		if envs[i], err = c.Create(seed + uint64(i)); err != nil {
			return nil, fmt.Errorf("vector: %w", err)
		}
	}
	return vector.NewSync(envs, label)
}

// Overrides used to build the presets

// RoomSize sets the range of room sizes
func RoomSize(min, max int) Override {
	return func(c *Config) {
		c.GridWorld.MinSize, c.GridWorld.MaxSize = min, max
	}
}

// Objects sets the number of objects
func Objects(n int) Override {
	return func(c *Config) { c.GridWorld.NumObjects = n }
}

// Trials sets the number of trials per episode
func Trials(n int) Override {
	return func(c *Config) { c.GridWorld.NumTrials = n }
}

// ExcludeReward removes the reward of the last step from observations
func ExcludeReward() Override {
	return func(c *Config) { c.GridWorld.IncludeReward = false }
}

// Shaped sets the type of shaped reward, with no noise
func Shaped(t wrappers.ShapeType) Override {
	return func(c *Config) {
		c.Shaped = &wrappers.ShapedConfig{Type: t, Noise: noise.Identity()}
	}
}

// Noise sets the noise of the shaped reward. Shaped must come first.
func Noise(n noise.Config) Override {
	return func(c *Config) {
		delay, start := c.Shaped.Noise.Delay, c.Shaped.Noise.DelayedStart
		c.Shaped.Noise = n
		if n.Delay == nil {
			c.Shaped.Noise.Delay = delay
		}
		if n.DelayedStart == nil {
			c.Shaped.Noise.DelayedStart = start
		}
	}
}

// Delay delays the shaped reward. Shaped must come first.
func Delay(d noise.Delay) Override {
	return func(c *Config) { c.Shaped.Noise = c.Shaped.Noise.WithDelay(d) }
}

// DelayedStart zeroes the shaped reward for the first trials. Shaped
// must come first.
func DelayedStart(s noise.Start) Override {
	return func(c *Config) {
		c.Shaped.Noise = c.Shaped.Noise.WithDelayedStart(s)
	}
}

var presets = map[string]Config{}

func add(c Config) {
	if _, ok := presets[c.Name]; ok {
		panic(fmt.Sprintf("add: duplicate preset %v", c.Name))
	}
	presets[c.Name] = c
}

func init() {
	debug := Config{Name: "fetch-debug", GridWorld: gridworld.Config{
		MinSize:            5,
		MaxSize:            5,
		NumTrials:          1,
		NumObjects:         2,
		MaxStepsMultiplier: 5,
		IncludeReward:      true,
	}}
	add(debug)

	fetch001 := debug.Inherit("fetch-001", Trials(100))
	add(fetch001)
	fetch002 := fetch001.Inherit("fetch-002", RoomSize(8, 16))
	add(fetch002)
	add(fetch002.Inherit("fetch-002-shaped", Shaped(wrappers.InverseDistance)))

	fetch004 := fetch002.Inherit("fetch-004", RoomSize(4, 6))
	add(fetch004)
	add(fetch004.Inherit("fetch-004-shaped",
		Shaped(wrappers.InverseDistance)))
	add(fetch004.Inherit("fetch-004-shaped-progress",
		Shaped(wrappers.Progress)))
	add(fetch004.Inherit("fetch-004-bigger", RoomSize(5, 12)))

	subtask := func(n noise.Config) []Override {
		return []Override{ExcludeReward(), Shaped(wrappers.Subtask), Noise(n)}
	}

	for _, cutoff := range []int{1000, 100, 50, 0} {
		add(fetch004.Inherit(fmt.Sprintf("fetch-004-stop_%d_trials", cutoff),
			subtask(noise.StopTrials(cutoff))...))
	}
	for x := 2; x <= 50; x++ {
		add(fetch004.Inherit(fmt.Sprintf("fetch-004-zero_%d_%d_trials", x, x),
			subtask(noise.ZeroCycleTrials(x, x))...))
	}
	add(fetch004.Inherit("fetch-004-zero_dynamic",
		subtask(noise.DynamicZeroing(10, 0.8, 0.1))...))
	add(fetch004.Inherit("fetch-004-stop_dynamic",
		subtask(noise.DynamicZeroing(10, 0.8, math.Inf(-1)))...))

	fetch005 := func(name string, overrides ...Override) Config {
		return fetch004.Inherit(name,
			append([]Override{RoomSize(5, 12)}, overrides...)...)
	}
	for _, cutoff := range []int{500, 200, 100, 50, 20, 1} {
		name := fmt.Sprintf("fetch-005-stop_%d", cutoff)
		add(fetch005(name, subtask(noise.StopSteps(cutoff))...))
		add(fetch005(name+"-delay_1",
			append(subtask(noise.StopSteps(cutoff)),
				Delay(noise.Delay{Type: noise.Fixed, Steps: 1}))...))
		add(fetch005(name+"-delay_1_2",
			append(subtask(noise.StopSteps(cutoff)),
				Delay(noise.Delay{Type: noise.Random, Min: 1, Max: 2}))...))
	}
	for _, cutoff := range []int{100, 50, 0} {
		add(fetch005(fmt.Sprintf("fetch-005-stop_%d_trials", cutoff),
			subtask(noise.StopTrials(cutoff))...))
	}
	for x := 1; x < 10; x++ {
		add(fetch005(fmt.Sprintf("fetch-005-zero_1_%d_trials", x),
			subtask(noise.ZeroCycleTrials(1, x))...))
	}
	add(fetch005("fetch-005-zero_30_70_trials",
		subtask(noise.ZeroCycleTrials(30, 70))...))
	add(fetch005("fetch-005-zero_dynamic",
		subtask(noise.DynamicZeroing(10, 0.8, 0.1))...))
	add(fetch005("fetch-005-stop_dynamic",
		subtask(noise.DynamicZeroing(10, 0.8, math.Inf(-1)))...))
	for _, d := range [][2]int{{0, 5}, {1, 5}} {
		delay := Delay(noise.Delay{Type: noise.Random, Min: d[0], Max: d[1],
			Replace: true})
		add(fetch005(fmt.Sprintf("fetch-005-delay_%d_%d", d[0], d[1]),
			append(subtask(noise.Identity()), delay)...))
		add(fetch005(fmt.Sprintf("fetch-005-stop_dynamic-delay_%d_%d", d[0],
			d[1]), append(subtask(noise.DynamicZeroing(10, 0.8,
			math.Inf(-1))), delay)...))
	}
	for _, d := range [][2]int{{0, 5}, {1, 5}, {1, 10}, {1, 20}, {10, 20},
		{10, 30}} {
		add(fetch005(fmt.Sprintf("fetch-005-delayed_start_%d_%d_trials", d[0],
			d[1]), append(subtask(noise.Identity()), DelayedStart(noise.Start{
			Type: noise.Random, Min: d[0], Max: d[1]}))...))
	}
	for _, n := range []int{10, 20, 50, 100} {
		add(fetch005(fmt.Sprintf("fetch-005-delayed_start_%d_trials", n),
			append(subtask(noise.Identity()), DelayedStart(noise.Start{
				Type: noise.Fixed, Trials: n}))...))
	}
}

// Get returns the named preset
func Get(name string) (Config, error) {
	c, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("get: %w %q", ErrUnknown, name)
	}
	return c.Inherit(name), nil
}

// Names returns the names of all presets in sorted order
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
