package experiment

// Counter counts environment steps. All tasks of an experiment share a
// single Counter. Start is the count the current run started at, which
// is non-zero when resuming from a checkpoint.
type Counter struct {
	start int
	total int
}

// NewCounter returns a new Counter starting at start
func NewCounter(start int) *Counter {
	return &Counter{start: start, total: start}
}

// Add adds n environment steps
func (c *Counter) Add(n int) {
	c.total += n
}

// Start returns the count the current run started at
func (c *Counter) Start() int {
	return c.start
}

// Total returns the total number of environment steps taken, including
// those taken before the current run started
func (c *Counter) Total() int {
	return c.total
}

// Run returns the number of environment steps taken in the current run
func (c *Counter) Run() int {
	return c.total - c.start
}

// Exhausted returns whether either step budget is used up. A budget
// <= 0 is unlimited.
func (c *Counter) Exhausted(maxSteps, maxStepsTotal int) bool {
	if maxSteps > 0 && c.Run() >= maxSteps {
		return true
	}
	return maxStepsTotal > 0 && c.total >= maxStepsTotal
}
