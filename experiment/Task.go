package experiment

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/samuelfneumann/mtppo/buffer/history"
	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/experiment/tracker"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/ppo"
	"github.com/samuelfneumann/mtppo/timestep"
	"github.com/samuelfneumann/mtppo/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// state is the phase a Task is in
type state int

const (
	warmup state = iota
	rollout
	optimize
)

// Update is a single PPO loss record produced by a Task
type Update struct {
	Label  string
	Record *ppo.Record

	// EpisodeReturns holds the returns of the episodes which ended
	// during the rollout the Record was computed on. Only the first
	// Record of each rollout carries them.
	EpisodeReturns []float64

	// Attention holds the diagnostic attention of the model, if it
	// exposes any, measured when the Record was produced
	Attention map[string]float64
}

// Task trains a model with PPO on one vector of environments. Each
// call to Next advances the Task's cycle
//
//	warmup (once) -> rollout -> optimize -> rollout -> optimize -> ...
//
// until the next loss record is ready. Tasks are not safe for
// concurrent use.
type Task struct {
	label   string
	env     environment.Vector
	model   network.Trainable
	config  Config
	counter *Counter
	tracker tracker.Tracker
	rng     *rand.Rand
	seed    uint64

	history *history.Buffer
	init    network.Hidden

	// Observation and hidden state before the first rollout
	obs    timestep.Observation
	hidden network.Hidden

	// Per-environment statistics of the running episodes
	episodeReward []float64
	trueReward    []float64
	episodeSteps  []int
	returns       []float64

	state  state
	iter   *ppo.Iterator
	first  bool
	cycles int
}

// NewTask returns a new Task training model on env. Environment steps
// are counted by counter, and episode statistics are logged to t, which
// may be nil.
func NewTask(label string, env environment.Vector, model network.Trainable,
	counter *Counter, t tracker.Tracker, c Config) (*Task, error) {
	if env.NumActions() != model.NumActions() {
		return nil, fmt.Errorf("newTask: environment has %d actions but "+
			"model has %d", env.NumActions(), model.NumActions())
	}

	n := env.NumEnvs()
	h, err := history.New(n, c.RolloutLength+1)
	if err != nil {
		return nil, fmt.Errorf("newTask: %w", err)
	}

	obs, err := env.Reset(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("newTask: %w", err)
	}

	task := &Task{
		label:         label,
		env:           env,
		model:         model,
		config:        c,
		counter:       counter,
		tracker:       t,
		rng:           rand.New(rand.NewSource(c.Seed)),
		seed:          c.Seed,
		history:       h,
		init:          model.InitHidden(n),
		hidden:        model.InitHidden(n),
		episodeReward: make([]float64, n),
		trueReward:    make([]float64, n),
		episodeSteps:  make([]int, n),
		state:         warmup,
	}
	task.obs = task.preprocess(obs)
	return task, nil
}

// Label returns the label of the Task
func (t *Task) Label() string {
	return t.label
}

// Next returns the next loss record of the Task, collecting a new
// rollout first if the records of the last one are used up. The
// gradient of the returned record is that of the model parameters at
// the time Next was called.
func (t *Task) Next() (*Update, error) {
	for {
		switch t.state {
		case warmup:
			if err := t.warmup(); err != nil {
				return nil, fmt.Errorf("next: %w", err)
			}
			if err := t.history.AppendObs(t.obs, nil, nil, t.hidden); err != nil {
				return nil, fmt.Errorf("next: %w", err)
			}
			t.obs, t.hidden = nil, nil
			t.state = rollout

		case rollout:
			if err := t.rollout(); err != nil {
				return nil, fmt.Errorf("next: %w", err)
			}
			iter, err := t.losses()
			if err != nil {
				return nil, fmt.Errorf("next: %w", err)
			}
			t.iter, t.first = iter, true
			t.state = optimize

		case optimize:
			if t.iter.Next() {
				u := &Update{Label: t.label, Record: t.iter.Record()}
				if t.first {
					u.EpisodeReturns = t.returns
					t.first = false
				}
				if a, ok := t.model.(network.Attender); ok {
					u.Attention = a.Attention()
				}
				return u, nil
			}
			if err := t.iter.Err(); err != nil {
				return nil, fmt.Errorf("next: %w", err)
			}
			t.endCycle()
			t.state = rollout
		}
	}
}

// endCycle clears the rollout and, if configured, replaces the hidden
// state the next rollout starts from with the one recomputed by the
// last optimization pass
func (t *Task) endCycle() {
	last := t.iter.Record()
	t.history.Clear()
	t.returns = nil
	t.iter = nil
	t.cycles++

	if t.config.UpdateHiddenAfterGrad && last != nil && last.Hidden != nil {
		t.history.SetHidden(0, last.Hidden)
	}
}

// losses returns the PPO loss records of the current rollout
func (t *Task) losses() (*ppo.Iterator, error) {
	if t.config.Recurrent {
		return ppo.NewRecurrent(t.history, t.model, t.config.PPO)
	}
	return ppo.NewFlat(t.history, t.model, t.config.PPO,
		t.seed+uint64(t.cycles))
}

// warmup steps the environments without learning so that recurrent
// state and environment state are not all at the start of an episode
func (t *Task) warmup() error {
	if t.config.WarmupSteps <= 0 {
		return nil
	}

	n := t.env.NumEnvs()
	labels := t.env.Labels()
	reward := make([]float64, n)
	steps := make([]int, n)
	rewards := make(map[string][]float64)
	lengths := make(map[string][]float64)

	for i := 0; i < t.config.WarmupSteps; i++ {
		out, err := t.model.Forward(t.obs, t.hidden)
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		b, err := t.env.Step(t.sample(out.Logits))
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}

		done := b.Done()
		t.obs = t.preprocess(b.Observation)
		if t.hidden, err = out.Hidden.ResetWhere(done, t.init); err != nil {
			return fmt.Errorf("warmup: %w", err)
		}

		for e := range done {
			reward[e] += b.Reward[e]
			steps[e]++
			if done[e] {
				rewards[labels[e]] = append(rewards[labels[e]], reward[e])
				lengths[labels[e]] = append(lengths[labels[e]],
					float64(steps[e]))
				reward[e], steps[e] = 0, 0
			}
		}
	}

	scalars := make(map[string]float64)
	for label, r := range rewards {
		scalars["reward/"+label] = stat.Mean(r, nil)
		scalars["episode_length/"+label] = stat.Mean(lengths[label], nil)
		log.Printf("Warmup %v: %d episodes, reward %.2f, length %.1f", label,
			len(r), scalars["reward/"+label],
			scalars["episode_length/"+label])
	}
	return t.track(scalars)
}

// rollout collects RolloutLength steps from every environment
func (t *Task) rollout() error {
	n := t.env.NumEnvs()

	for i := 0; i < t.config.RolloutLength; i++ {
		t.counter.Add(n)

		last := t.history.Len() - 1
		hidden, err := t.history.Hidden(last).ResetWhere(
			t.history.Terminal(last), t.init)
		if err != nil {
			return fmt.Errorf("rollout: %w", err)
		}
		out, err := t.model.Forward(t.history.Obs(last), hidden)
		if err != nil {
			return fmt.Errorf("rollout: %w", err)
		}

		actions := t.sample(out.Logits)
		b, err := t.env.Step(actions)
		if err != nil {
			return fmt.Errorf("rollout: %w", err)
		}
		if err := t.history.AppendAction(actions); err != nil {
			return fmt.Errorf("rollout: %w", err)
		}

		reward := make([]float64, n)
		for e := range reward {
			t.episodeReward[e] += b.Reward[e]
			t.trueReward[e] += b.Info[e].Reward
			t.episodeSteps[e]++
			reward[e] = t.scaleReward(b.Reward[e])
		}

		done := b.Done()
		err = t.history.AppendObs(t.preprocess(b.Observation), reward, done,
			out.Hidden)
		if err != nil {
			return fmt.Errorf("rollout: %w", err)
		}
		if err := t.endEpisodes(b, done); err != nil {
			return fmt.Errorf("rollout: %w", err)
		}
	}
	return nil
}

// scaleReward scales and then clips a reward
func (t *Task) scaleReward(r float64) float64 {
	return floatutils.ClipAbs(r*t.config.RewardScale, t.config.RewardClip)
}

// endEpisodes logs the statistics of the episodes which ended on the
// last step, averaged over the environments of each label, and resets
// the running statistics of those environments
func (t *Task) endEpisodes(b timestep.Batch, done []bool) error {
	type episodes struct {
		reward, trueReward, length []float64
		final                      map[string][]float64
	}
	labels := t.env.Labels()
	ended := make(map[string]*episodes)

	for e, d := range done {
		if !d {
			continue
		}
		ep, ok := ended[labels[e]]
		if !ok {
			ep = &episodes{final: make(map[string][]float64)}
			ended[labels[e]] = ep
		}
		ep.reward = append(ep.reward, t.episodeReward[e])
		ep.trueReward = append(ep.trueReward, t.trueReward[e])
		ep.length = append(ep.length, float64(t.episodeSteps[e]))
		for k, v := range b.Info[e].Final {
			ep.final[k] = append(ep.final[k], v)
		}

		t.returns = append(t.returns, t.episodeReward[e])
		t.episodeReward[e], t.trueReward[e], t.episodeSteps[e] = 0, 0, 0
	}
	if len(ended) == 0 {
		return nil
	}

	scalars := make(map[string]float64)
	names := make([]string, 0, len(ended))
	for label := range ended {
		names = append(names, label)
	}
	sort.Strings(names)

	for _, label := range names {
		ep := ended[label]
		scalars["reward/"+label] = stat.Mean(ep.reward, nil)
		scalars["true_reward/"+label] = stat.Mean(ep.trueReward, nil)
		scalars["episode_length/"+label] = stat.Mean(ep.length, nil)

		for k, v := range ep.final {
			// Rewards of a kind of trial are only meaningful when there
			// were trials of that kind
			if strings.HasSuffix(k, "_reward") {
				trials, ok := ep.final[strings.TrimSuffix(k, "_reward")+"_trials"]
				if ok && stat.Mean(trials, nil) <= 0 {
					continue
				}
			}
			scalars[k+"/"+label] = stat.Mean(v, nil)
		}

		log.Printf("  reward: %.2f\t len: %v \t env: %v (%d)",
			scalars["reward/"+label], scalars["episode_length/"+label], label,
			len(ep.reward))
	}
	scalars["step"] = float64(t.counter.Run())
	scalars["step_total"] = float64(t.counter.Total())
	return t.track(scalars)
}

// sample samples one action per row of logits
func (t *Task) sample(logits *mat.Dense) []int {
	r, c := logits.Dims()
	actions := make([]int, r)
	for i := 0; i < r; i++ {
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		p := make([]float64, c)
		for j, l := range row {
			p[j] = math.Exp(l - lse)
		}
		actions[i] = int(distuv.NewCategorical(p, t.rng).Rand())
	}
	return actions
}

// preprocess removes ignored observation components and scales the
// rest
func (t *Task) preprocess(obs timestep.Observation) timestep.Observation {
	return Preprocess(obs, t.config.ObsScale, t.config.ObsIgnore)
}

func (t *Task) track(scalars map[string]float64) error {
	if t.tracker == nil || len(scalars) == 0 {
		return nil
	}
	return t.tracker.Track(t.counter.Total(), scalars)
}

// Preprocess returns obs without the components named in ignore and
// with each component named in scale multiplied by its scale
func Preprocess(obs timestep.Observation, scale map[string]float64,
	ignore []string) timestep.Observation {
	out := make(timestep.Observation, len(obs))
	for k, m := range obs {
		if contains(ignore, k) {
			continue
		}
		s, ok := scale[k]
		if !ok || s == 1 {
			out[k] = m
			continue
		}
		var scaled mat.Dense
		scaled.Scale(s, m)
		out[k] = &scaled
	}
	return out
}

// Inputs returns the model inputs for an observation specification
// once the components named in ignore are removed
func Inputs(specs []environment.Spec, ignore []string) []network.Input {
	var inputs []network.Input
	for _, s := range specs {
		if !contains(ignore, s.Name) {
			inputs = append(inputs, network.Input{Name: s.Name, Size: s.Size})
		}
	}
	return inputs
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
