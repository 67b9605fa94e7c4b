package tracker

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// Log writes tracked scalars to a log.Logger, one line per call to
// Track. Nothing is cached, so Save does nothing.
type Log struct {
	logger *log.Logger
	keys   []string
}

// NewLog returns a new Log Tracker writing to logger. If keys are
// given, only scalars whose names start with one of them are logged.
// If logger is nil, the standard logger is used.
func NewLog(logger *log.Logger, keys ...string) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger, keys: keys}
}

// Track logs the scalars in order of their names
func (l *Log) Track(step int, scalars map[string]float64) error {
	names := make([]string, 0, len(scalars))
	for k := range scalars {
		if l.logs(k) {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "step %d:", step)
	for _, k := range names {
		fmt.Fprintf(&b, " %s=%.4g", k, scalars[k])
	}
	l.logger.Print(b.String())
	return nil
}

// Save does nothing
func (l *Log) Save() error {
	return nil
}

func (l *Log) logs(key string) bool {
	if len(l.keys) == 0 {
		return true
	}
	for _, k := range l.keys {
		if strings.HasPrefix(key, k) {
			return true
		}
	}
	return false
}
