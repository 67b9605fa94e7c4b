// Package progressbar implements functionality of printing training
// progress to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uilive"
)

// Progress prints the number of environment steps taken, the number of
// steps per second, and either the estimated time remaining or the
// time elapsed. Each update overwrites the last in the terminal.
type Progress struct {
	writer    *uilive.Writer
	maxSteps  int // <= 0 if unknown
	startTime time.Time
}

// New returns a new Progress writing to out. If maxSteps <= 0, the
// time elapsed is printed instead of the time remaining.
func New(out io.Writer, maxSteps int) *Progress {
	w := uilive.New()
	w.Out = out
	w.Start()
	return &Progress{
		writer:    w,
		maxSteps:  maxSteps,
		startTime: time.Now(),
	}
}

// Update prints the progress after steps environment steps
func (p *Progress) Update(steps int) {
	fmt.Fprintln(p.writer, Line(steps, p.maxSteps, time.Since(p.startTime)))
}

// Stop flushes the last update and stops the Progress
func (p *Progress) Stop() {
	p.writer.Stop()
}

// Line formats the progress of steps out of maxSteps environment steps
// taken over elapsed time
func Line(steps, maxSteps int, elapsed time.Duration) string {
	var sps float64
	if elapsed > 0 {
		sps = float64(steps) / elapsed.Seconds()
	}

	if maxSteps <= 0 {
		return fmt.Sprintf("Step %v \t %v SPS \t Elapsed: %v", commas(steps),
			commas(int(sps)), clock(elapsed))
	}

	var remaining time.Duration
	if sps > 0 && steps < maxSteps {
		remaining = time.Duration(float64(maxSteps-steps) / sps *
			float64(time.Second))
	}
	return fmt.Sprintf("Step %v/%v \t %v SPS \t Remaining: %v", commas(steps),
		commas(maxSteps), commas(int(sps)), clock(remaining))
}

// clock formats d as hh:mm:ss
func clock(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// commas formats n with thousands separators
func commas(n int) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	s := fmt.Sprint(n)

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String()
}
