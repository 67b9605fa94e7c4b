package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"reflect"

	"github.com/google/uuid"
	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/environment/envconfig"
	"github.com/samuelfneumann/mtppo/experiment"
	"github.com/samuelfneumann/mtppo/experiment/checkpointer"
	"github.com/samuelfneumann/mtppo/experiment/tracker"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/solver"
	"github.com/samuelfneumann/mtppo/utils/progressbar"
	"github.com/spf13/cobra"
)

// trainFlags holds the command line arguments of the train command
type trainFlags struct {
	config  string
	envs    []string
	numEnvs int
	seed    uint64

	model     string
	decay     float64
	optimizer string
	lr        float64

	checkpoint                string
	startingModel             string
	ignoreCheckpointOptimizer bool
	keepCheckpoints           bool
	runID                     string

	data   string
	plots  string
	sqlite string
	redis  string
	serve  string
	quiet  bool

	// Overrides of the experiment configuration
	rolloutLength int
	warmupSteps   int
	maxSteps      int
	maxStepsTotal int
	interval      int
	flat          bool
}

// TrainCommand trains a model on one or more environment presets
func TrainCommand() *cobra.Command {
	return newTrainCommand(new(trainFlags))
}

// newTrainCommand returns the train command, parsing its flags into f
func newTrainCommand(f *trainFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model with multi-task PPO",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.experimentConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt)
			defer stop()
			return train(ctx, *f, c)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.config, "config", "", "JSON file with the experiment configuration")
	flags.StringSliceVar(&f.envs, "envs", []string{"fetch-004"}, "Environment presets, one task each")
	flags.IntVar(&f.numEnvs, "num-envs", 16, "Number of environments per task")
	flags.Uint64Var(&f.seed, "seed", 0, "Random seed")

	flags.StringVar(&f.model, "model", string(network.LinearTraceType), "Model type (LinearTrace, Linear, RNN)")
	flags.Float64Var(&f.decay, "decay", 0.9, "Decay of the observation trace")
	flags.StringVar(&f.optimizer, "optimizer", string(solver.Adam), "Optimizer (Adam, RMSprop, SGD)")
	flags.Float64Var(&f.lr, "lr", 2.5e-4, "Learning rate")

	flags.StringVar(&f.checkpoint, "checkpoint", "", "Checkpoint file to resume from and save to")
	flags.StringVar(&f.startingModel, "starting-model", "", "Checkpoint to take initial parameters from when there is no checkpoint")
	flags.BoolVar(&f.ignoreCheckpointOptimizer, "ignore-checkpoint-optimizer", false, "Use the optimizer type and learning rate from the command line instead of those saved in the checkpoint (optimizer state is never saved)")
	flags.BoolVar(&f.keepCheckpoints, "keep-checkpoints", false, "Number checkpoints instead of overwriting the last")
	flags.StringVar(&f.runID, "run-id", "", "Run ID (default: from the checkpoint or random)")

	flags.StringVar(&f.data, "data", "", "File to save episode returns to")
	flags.StringVar(&f.plots, "plots", "", "Directory to save plots to")
	flags.StringVar(&f.sqlite, "sqlite", "", "SQLite database to log to")
	flags.StringVar(&f.redis, "redis", "", "Address of a Redis server to log to")
	flags.StringVar(&f.serve, "serve", "", "Address to serve logged data on")
	flags.BoolVar(&f.quiet, "quiet", false, "Do not log losses or show progress")

	flags.IntVar(&f.rolloutLength, "rollout-length", 0, "Steps per rollout")
	flags.IntVar(&f.warmupSteps, "warmup-steps", 0, "Steps to take before training")
	flags.IntVar(&f.maxSteps, "max-steps", 0, "Environment steps to train for in this run (-1 for no limit)")
	flags.IntVar(&f.maxStepsTotal, "max-steps-total", 0, "Environment steps to train for in total (-1 for no limit)")
	flags.IntVar(&f.interval, "checkpoint-interval", 0, "Updates between checkpoints")
	flags.BoolVar(&f.flat, "flat", false, "Train on shuffled minibatches of steps instead of whole trajectories")
	return cmd
}

// experimentConfig returns the default configuration, updated by the
// configuration file and then by any flags that were set
func (f trainFlags) experimentConfig(cmd *cobra.Command) (experiment.Config,
	error) {
	c := experiment.DefaultConfig()
	if f.config != "" {
		data, err := os.ReadFile(f.config)
		if err != nil {
			return c, fmt.Errorf("config: %w", err)
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("config: %v: %w", f.config, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("rollout-length") {
		c.RolloutLength = f.rolloutLength
	}
	if flags.Changed("warmup-steps") {
		c.WarmupSteps = f.warmupSteps
	}
	if flags.Changed("max-steps") {
		c.MaxSteps = f.maxSteps
	}
	if flags.Changed("max-steps-total") {
		c.MaxStepsTotal = f.maxStepsTotal
	}
	if flags.Changed("checkpoint-interval") {
		c.CheckpointInterval = f.interval
	}
	if flags.Changed("flat") {
		c.Recurrent = !f.flat
	}
	if flags.Changed("model") {
		c.Model.Type = network.Type(f.model)
	}
	if flags.Changed("decay") {
		c.Model.Decay = f.decay
	}
	c.Seed = f.seed
	c.Model.Seed = f.seed
	return c, c.Validate(len(f.envs))
}

func train(ctx context.Context, f trainFlags, c experiment.Config) error {
	envs := make([]environment.Vector, len(f.envs))
	for i, name := range f.envs {
		preset, err := envconfig.Get(name)
		if err != nil {
			return err
		}
		if envs[i], err = preset.Vector(f.numEnvs, name, f.seed); err != nil {
			return err
		}
	}

	inputs := experiment.Inputs(envs[0].ObservationSpec(), c.ObsIgnore)
	for i, env := range envs[1:] {
		if !reflect.DeepEqual(experiment.Inputs(env.ObservationSpec(),
			c.ObsIgnore), inputs) || env.NumActions() != envs[0].NumActions() {
			return fmt.Errorf("train: %v and %v have different observations "+
				"or actions", f.envs[0], f.envs[i+1])
		}
	}
	model, err := network.New(c.Model, inputs, envs[0].NumActions())
	if err != nil {
		return err
	}

	s, err := solver.New(f.optimizer, f.lr)
	if err != nil {
		return err
	}

	start, runID, err := f.restore(model, &s)
	if err != nil {
		return err
	}
	log.Printf("Run %v starting at step %d", runID, start)
	if c.MaxStepsTotal > 0 && start > c.MaxStepsTotal {
		log.Printf("Checkpoint is past the total step budget")
		return nil
	}

	t, err := f.trackers(ctx, runID)
	if err != nil {
		return err
	}

	counter := experiment.NewCounter(start)
	o, err := experiment.NewOnline(model, s, f.envs, envs, counter, t, c)
	if err != nil {
		return err
	}

	bundle := func() (*checkpointer.Bundle, error) {
		return checkpointer.NewBundle(model, s, counter.Total(), runID)
	}
	if f.checkpoint != "" {
		name := checkpointer.Filename(f.checkpoint)
		if f.keepCheckpoints {
			name = checkpointer.FilenameEnumerator(0, f.checkpoint)
		}
		o.Register(checkpointer.NewNStep(c.CheckpointInterval, bundle, name))
	}
	if !f.quiet {
		steps := c.MaxSteps
		if c.MaxStepsTotal > 0 && (steps <= 0 || c.MaxStepsTotal-start < steps) {
			steps = c.MaxStepsTotal - start
		}
		o.ShowProgress(progressbar.New(os.Stdout, steps))
	}

	return f.finish(o.Run(ctx), o, bundle)
}

// finish saves a checkpoint and any logged data once training stops
// with runErr, and returns the error the command exits with. No
// checkpoint is saved after a NaN gradient.
func (f trainFlags) finish(runErr error, logged interface{ Save() error },
	bundle func() (*checkpointer.Bundle, error)) error {
	if errors.Is(runErr, experiment.ErrNaNGradient) {
		return errors.Join(runErr, logged.Save())
	}

	// Always leave a checkpoint behind, even when interrupted
	file := f.checkpoint
	if file == "" && runErr != nil {
		file = checkpointer.FileTimer("temp-checkpoint.gob")()
	}
	if file != "" {
		b, err := bundle()
		if err != nil {
			return err
		}
		if err := checkpointer.Save(file, b); err != nil {
			return err
		}
		log.Printf("Checkpoint saved to %v", file)
	}

	if err := logged.Save(); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// restore loads the checkpoint, or the starting model if there is no
// checkpoint, into model. The optimizer is restored from the checkpoint
// unless ignoreCheckpointOptimizer is set. It returns the step and run
// ID to resume from.
func (f trainFlags) restore(model network.Trainable,
	s **solver.Solver) (int, string, error) {
	runID := f.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	var b *checkpointer.Bundle
	var err error
	if f.checkpoint != "" {
		if b, err = checkpointer.Load(f.checkpoint); err != nil {
			return 0, "", err
		}
	}
	if b == nil {
		if f.startingModel == "" {
			return 0, runID, nil
		}
		if b, err = checkpointer.Load(f.startingModel); err != nil {
			return 0, "", err
		} else if b == nil {
			return 0, "", fmt.Errorf("restore: no model in %v",
				f.startingModel)
		}
		log.Printf("Starting from model in %v", f.startingModel)
		return 0, runID, b.Restore(model)
	}

	log.Printf("Resuming from checkpoint %v", f.checkpoint)
	if err := b.Restore(model); err != nil {
		return 0, "", err
	}
	if !f.ignoreCheckpointOptimizer {
		saved, err := b.RestoreSolver()
		if err != nil {
			return 0, "", err
		}
		if saved != nil {
			*s = saved
		}
	}
	if f.runID == "" && b.RunID != "" {
		runID = b.RunID
	}
	return b.Step, runID, nil
}

// trackers returns the Trackers selected on the command line
func (f trainFlags) trackers(ctx context.Context,
	runID string) (tracker.Tracker, error) {
	var t tracker.Multi
	if !f.quiet {
		t = append(t, tracker.NewLog(log.Default(), "loss/total/", "approx_kl/"))
	}
	if f.data != "" {
		t = append(t, tracker.NewReturn(f.data))
	}
	if f.plots != "" {
		t = append(t, tracker.NewPlot(f.plots))
	}
	if f.sqlite != "" {
		s, err := tracker.NewSQLite(f.sqlite, runID)
		if err != nil {
			return nil, err
		}
		t = append(t, s)
	}
	if f.redis != "" {
		r := tracker.NewRedis(f.redis, runID, 100_000)
		if err := r.Ping(ctx); err != nil {
			return nil, err
		}
		t = append(t, r)
	}
	if f.serve != "" {
		s := tracker.NewServer(f.serve)
		s.Start(ctx)
		t = append(t, s)
	}
	return t, nil
}
