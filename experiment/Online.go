package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/experiment/checkpointer"
	"github.com/samuelfneumann/mtppo/experiment/tracker"
	"github.com/samuelfneumann/mtppo/multitask"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/solver"
	"github.com/samuelfneumann/mtppo/utils/floatutils"
	"github.com/samuelfneumann/mtppo/utils/progressbar"
)

// Online is an Experiment that trains a single model online on several
// tasks at once. On each Step, every task produces one loss record and
// the weighted sum of their losses is used for a single gradient step.
type Online struct {
	config   Config
	tasks    []*Task
	model    network.Trainable
	solver   *solver.Solver
	weighter multitask.Weighter
	counter  *Counter
	tracker  tracker.Tracker

	checkpointer checkpointer.Checkpointer
	progress     *progressbar.Progress
	iterations   int
}

// NewOnline creates and returns a new online experiment training model
// with s. Task i runs on envs[i] and is labelled labels[i]. Environment
// steps are counted by counter and all logged data is sent to t, which
// may be nil.
func NewOnline(model network.Trainable, s *solver.Solver, labels []string,
	envs []environment.Vector, counter *Counter, t tracker.Tracker,
	c Config) (*Online, error) {
	if len(envs) == 0 || len(labels) != len(envs) {
		return nil, fmt.Errorf("newOnline: have %d labels and %d "+
			"environments", len(labels), len(envs))
	}
	if err := c.Validate(len(envs)); err != nil {
		return nil, fmt.Errorf("newOnline: %w", err)
	}
	weighter, err := c.Multitask.weighter(len(envs))
	if err != nil {
		return nil, fmt.Errorf("newOnline: %w", err)
	}

	seen := make(map[string]bool)
	tasks := make([]*Task, len(envs))
	seed := c.Seed
	for i, env := range envs {
		if seen[labels[i]] {
			return nil, fmt.Errorf("newOnline: duplicate task label %q",
				labels[i])
		}
		seen[labels[i]] = true

		taskConfig := c
		taskConfig.Seed = seed
		seed += uint64(env.NumEnvs())

		if tasks[i], err = NewTask(labels[i], env, model, counter, t,
			taskConfig); err != nil {
			return nil, fmt.Errorf("newOnline: %w", err)
		}
	}

	return &Online{
		config:   c,
		tasks:    tasks,
		model:    model,
		solver:   s,
		weighter: weighter,
		counter:  counter,
		tracker:  t,
	}, nil
}

// Register registers a Checkpointer which is called after every update
func (o *Online) Register(c checkpointer.Checkpointer) {
	o.checkpointer = c
}

// ShowProgress displays the progress of the experiment on p
func (o *Online) ShowProgress(p *progressbar.Progress) {
	o.progress = p
}

// Iterations returns the number of updates performed
func (o *Online) Iterations() int {
	return o.iterations
}

// Step performs a single update of the model. Step returns
// ErrBudgetReached once the step budget is used up, in which case the
// model is not updated. If any gradient is NaN, the model is not
// updated and an error wrapping ErrNaNGradient is returned.
func (o *Online) Step() error {
	if o.exhausted() {
		return ErrBudgetReached
	}

	updates := make([]*Update, len(o.tasks))
	for i, task := range o.tasks {
		u, err := task.Next()
		if err != nil {
			return fmt.Errorf("step: task %v: %w", task.Label(), err)
		}
		updates[i] = u
	}
	if o.exhausted() {
		return ErrBudgetReached
	}

	weights := o.weights(updates)
	o.model.ZeroGrad()
	var loss float64
	for i, u := range updates {
		if err := u.Record.Backward(weights[i]); err != nil {
			return fmt.Errorf("step: task %v: %w", u.Label, err)
		}
		loss += weights[i] * u.Record.Loss
	}

	norm, err := o.clipGradients()
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if err := o.solver.Step(network.ValueGrads(o.model)); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	o.iterations++

	if err := o.track(updates, weights, loss, norm); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if o.progress != nil {
		o.progress.Update(o.counter.Run())
	}
	return nil
}

// Run performs updates until the step budget is used up, ctx is
// cancelled, or an error occurs. Run returns nil once the budget is used
// up and ctx.Err() if ctx is cancelled.
func (o *Online) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := o.Step(); errors.Is(err, ErrBudgetReached) {
			return nil
		} else if err != nil {
			return err
		}

		if o.checkpointer != nil {
			if err := o.checkpointer.Checkpoint(o.iterations); err != nil {
				return fmt.Errorf("run: checkpoint: %w", err)
			}
		}
	}
}

// Save saves all the data tracked during the experiment
func (o *Online) Save() error {
	if o.progress != nil {
		o.progress.Stop()
	}
	if o.tracker == nil {
		return nil
	}
	return o.tracker.Save()
}

func (o *Online) exhausted() bool {
	return o.counter.Exhausted(o.config.MaxSteps, o.config.MaxStepsTotal)
}

// weights returns the weight of the loss of each task
func (o *Online) weights(updates []*Update) []float64 {
	if o.weighter == nil {
		w := make([]float64, len(updates))
		for i := range w {
			w[i] = 1 / float64(len(updates))
		}
		return w
	}

	returns := make([][]float64, len(updates))
	for i, u := range updates {
		returns[i] = u.EpisodeReturns
	}
	o.weighter.Step(returns)
	return o.weighter.Weight()
}

// clipGradients rescales the accumulated gradients so that their global
// norm is at most MaxGradNorm and returns the norm before rescaling
func (o *Online) clipGradients() (float64, error) {
	params := o.model.Learnables()

	var sq float64
	for _, p := range params {
		for _, g := range p.GradData() {
			sq += g * g
		}
	}
	norm := math.Sqrt(sq)
	if !floatutils.Finite(norm) {
		for _, p := range params {
			if floatutils.FirstNonFinite(p.GradData()) >= 0 {
				log.Printf("Non-finite gradient in %v", p.Name())
			}
		}
		return norm, fmt.Errorf("clipGradients: %w (norm %v)",
			ErrNaNGradient, norm)
	}

	if limit := o.config.MaxGradNorm; limit > 0 && norm > limit {
		scale := limit / (norm + 1e-6)
		for _, p := range params {
			g := p.GradData()
			for i := range g {
				g[i] *= scale
			}
		}
	}
	return norm, nil
}

func (o *Online) track(updates []*Update, weights []float64, loss,
	norm float64) error {
	if o.tracker == nil {
		return nil
	}

	scalars := map[string]float64{
		"loss":       loss,
		"grad_norm":  norm,
		"step":       float64(o.counter.Run()),
		"step_total": float64(o.counter.Total()),
	}
	for i, u := range updates {
		r := u.Record
		scalars["loss/pi/"+u.Label] = r.PolicyLoss
		scalars["loss/v/"+u.Label] = r.ValueLoss
		scalars["loss/entropy/"+u.Label] = r.EntropyLoss
		scalars["loss/total/"+u.Label] = r.Loss
		scalars["approx_kl/"+u.Label] = r.ApproxKL
		scalars["state_value/"+u.Label] = r.StateValue
		scalars["entropy/"+u.Label] = r.Entropy
		if o.weighter != nil {
			scalars["multitask_dynamic_weight/"+u.Label] = weights[i]
		}
	}
	if att := updates[0].Attention; att != nil {
		for k, v := range att {
			scalars["attention/"+k] = v
		}
	}
	return o.tracker.Track(o.counter.Total(), scalars)
}
