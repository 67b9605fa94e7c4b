package tracker

import (
	"fmt"
	"strings"
)

// Return tracks and saves the episodic returns of each task in an
// experiment. Experiments log the mean return of the episodes which
// ended on a step under "reward/<task>", and this Tracker caches each
// of those scalars for saving later. Data is gob encoded and can be
// read back with LoadData.
//
// Note: An episode must finish for its return to be tracked. If the
// last episode in an experiment does not finish, that episode's return
// will not be saved.
type Return struct {
	prefixes []string
	returns  Series
	filename string
}

// NewReturn creates and returns a new *Return Tracker which saves to
// filename. Scalars whose names start with one of prefixes are tracked.
// If no prefixes are given, episodic returns and lengths are tracked.
func NewReturn(filename string, prefixes ...string) *Return {
	if len(prefixes) == 0 {
		prefixes = []string{"reward/", "episode_length/"}
	}
	return &Return{
		prefixes: prefixes,
		returns:  make(Series),
		filename: filename,
	}
}

// Track caches the tracked scalars logged at step
func (r *Return) Track(step int, scalars map[string]float64) error {
	for k, v := range scalars {
		if r.tracks(k) {
			r.returns[k] = append(r.returns[k], Point{step, v})
		}
	}
	return nil
}

// Data returns the tracked Series
func (r *Return) Data() Series {
	return r.returns
}

// Save saves the data tracked by the Return Tracker to disk
func (r *Return) Save() error {
	if err := saveData(r.filename, r.returns); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (r *Return) tracks(key string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
