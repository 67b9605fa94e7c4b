// Package history implements a bounded rolling buffer of trajectories
// collected from a vector of environments
package history

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/timestep"
)

// Buffer stores, for each step of a rollout, the observation reached
// on that step, the reward received and whether the episode ended on
// arriving there, the hidden state the policy acted with, and the
// action taken. Each entry holds data for every environment in a
// vector of environments.
//
// A Buffer holds at most maxLen entries. Once full, appending drops the
// oldest entry. Buffers are owned by a single training task.
type Buffer struct {
	numEnvs int
	maxLen  int

	obs       []timestep.Observation
	rewards   [][]float64
	terminals [][]bool
	hidden    []network.Hidden
	actions   [][]int
}

// New returns a new Buffer for numEnvs environments holding at most
// maxLen entries
func New(numEnvs, maxLen int) (*Buffer, error) {
	if numEnvs <= 0 {
		return nil, fmt.Errorf("new: numEnvs must be positive, have %d",
			numEnvs)
	}
	if maxLen < 2 {
		return nil, fmt.Errorf("new: maxLen must be at least 2, have %d",
			maxLen)
	}
	return &Buffer{numEnvs: numEnvs, maxLen: maxLen}, nil
}

// NumEnvs returns the number of environments the Buffer stores data for
func (b *Buffer) NumEnvs() int {
	return b.numEnvs
}

// MaxLen returns the maximum number of entries in the Buffer
func (b *Buffer) MaxLen() int {
	return b.maxLen
}

// Len returns the number of entries in the Buffer
func (b *Buffer) Len() int {
	return len(b.obs)
}

// AppendObs appends a new entry. A nil reward or terminal is stored as
// zeros, which is appropriate for the first observation of a rollout.
func (b *Buffer) AppendObs(obs timestep.Observation, reward []float64,
	terminal []bool, hidden network.Hidden) error {
	if reward == nil {
		reward = make([]float64, b.numEnvs)
	}
	if terminal == nil {
		terminal = make([]bool, b.numEnvs)
	}
	if len(reward) != b.numEnvs || len(terminal) != b.numEnvs {
		return fmt.Errorf("appendObs: want %d environments, have %d "+
			"rewards and %d terminals", b.numEnvs, len(reward),
			len(terminal))
	}
	if batch := obs.Batch(); batch != b.numEnvs {
		return fmt.Errorf("appendObs: observation has batch size %d, "+
			"want %d", batch, b.numEnvs)
	}

	if len(b.obs) == b.maxLen {
		b.obs = b.obs[1:]
		b.rewards = b.rewards[1:]
		b.terminals = b.terminals[1:]
		b.hidden = b.hidden[1:]
		if len(b.actions) > 0 {
			b.actions = b.actions[1:]
		}
	}

	b.obs = append(b.obs, obs)
	b.rewards = append(b.rewards, append([]float64(nil), reward...))
	b.terminals = append(b.terminals, append([]bool(nil), terminal...))
	b.hidden = append(b.hidden, hidden)
	return nil
}

// AppendAction records the actions taken at the most recent entry
func (b *Buffer) AppendAction(actions []int) error {
	if len(actions) != b.numEnvs {
		return fmt.Errorf("appendAction: want %d actions, have %d",
			b.numEnvs, len(actions))
	}
	if len(b.actions) >= len(b.obs) {
		return fmt.Errorf("appendAction: no observation to act in")
	}
	b.actions = append(b.actions, append([]int(nil), actions...))
	return nil
}

// Clear removes all entries except the most recent, which becomes the
// first entry of the next rollout. Its action, if any, is discarded.
func (b *Buffer) Clear() {
	if len(b.obs) == 0 {
		return
	}
	last := len(b.obs) - 1
	b.obs = []timestep.Observation{b.obs[last]}
	b.rewards = [][]float64{b.rewards[last]}
	b.terminals = [][]bool{b.terminals[last]}
	b.hidden = []network.Hidden{b.hidden[last]}
	b.actions = nil
}

// Obs returns the observation at step t
func (b *Buffer) Obs(t int) timestep.Observation {
	return b.obs[t]
}

// Reward returns the rewards received on arriving at step t
func (b *Buffer) Reward(t int) []float64 {
	return b.rewards[t]
}

// Rewards returns the rewards of every step
func (b *Buffer) Rewards() [][]float64 {
	return b.rewards
}

// Terminal returns whether each episode ended on arriving at step t
func (b *Buffer) Terminal(t int) []bool {
	return b.terminals[t]
}

// Terminals returns the terminal flags of every step
func (b *Buffer) Terminals() [][]bool {
	return b.terminals
}

// Hidden returns the hidden state the policy held at step t, before
// any reset for episodes which ended on arriving at step t
func (b *Buffer) Hidden(t int) network.Hidden {
	return b.hidden[t]
}

// SetHidden replaces the hidden state stored at step t
func (b *Buffer) SetHidden(t int, h network.Hidden) {
	b.hidden[t] = h
}

// Action returns the actions taken at step t
func (b *Buffer) Action(t int) []int {
	return b.actions[t]
}

// NumActions returns the number of steps with recorded actions
func (b *Buffer) NumActions() int {
	return len(b.actions)
}
