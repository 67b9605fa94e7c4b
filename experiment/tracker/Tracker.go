// Package tracker implements Trackers, which track and save the scalar
// data logged during an experiment
package tracker

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Interface Tracker keeps track of experiment data and saves the data
// after the experiment has finished. Scalars are keyed by name, such as
// "loss/pi/fetch-004" or "reward/fetch-004", and logged at a number of
// environment steps.
type Tracker interface {
	Track(step int, scalars map[string]float64) error
	Save() error
}

// Multi is a Tracker which forwards to several Trackers
type Multi []Tracker

// Track tracks the scalars with every Tracker. All Trackers are called
// even if some return errors.
func (m Multi) Track(step int, scalars map[string]float64) error {
	var errs []error
	for _, t := range m {
		if err := t.Track(step, scalars); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Save saves the data of every Tracker
func (m Multi) Save() error {
	var errs []error
	for _, t := range m {
		if err := t.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Point is a scalar logged at some number of environment steps
type Point struct {
	Step  int
	Value float64
}

// Series maps scalar names to their logged values
type Series map[string][]Point

// add appends the scalars to the series
func (s Series) add(step int, scalars map[string]float64) {
	for k, v := range scalars {
		s[k] = append(s[k], Point{step, v})
	}
}

// Keys returns the names in the Series, sorted
func (s Series) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values logged under key, in order
func (s Series) Values(key string) []float64 {
	v := make([]float64, len(s[key]))
	for i, p := range s[key] {
		v[i] = p.Value
	}
	return v
}

// LoadData loads and returns the Series saved by a Tracker
func LoadData(filename string) (Series, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %w", err)
	}
	defer file.Close()

	var data Series
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %w", err)
	}
	return data, nil
}

// saveData gob encodes the Series to filename
func saveData(filename string, data Series) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not open save file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("could not encode data: %w", err)
	}
	return file.Close()
}
