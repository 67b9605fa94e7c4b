package ppo

import "github.com/samuelfneumann/mtppo/network"

// Record holds the losses of one optimization pass, either one epoch
// or one minibatch
type Record struct {
	Loss        float64
	PolicyLoss  float64
	ValueLoss   float64
	EntropyLoss float64 // negative mean entropy
	ApproxKL    float64

	// Mean state value and policy entropy over the samples
	StateValue float64
	Entropy    float64

	// Hidden is the hidden state reached at the last step of the
	// trajectory during this pass. It is only set by the recurrent
	// variant.
	Hidden network.Hidden

	// Samples is the number of samples the losses are averaged over
	Samples int

	backward func(scale float64) error
}

// Backward accumulates scale times the gradient of Loss into the
// gradients of the model that produced the Record. The gradient is
// that of the model parameters at the time the Record was produced.
func (r *Record) Backward(scale float64) error {
	if r.backward == nil {
		return nil
	}
	return r.backward(scale)
}

// Iterator lazily produces Records. Iterators are used like a
// bufio.Scanner:
//
//	for it.Next() {
//		r := it.Record()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// If a target KL divergence is set, iteration stops after the first
// Record whose approximate KL divergence exceeds it.
type Iterator struct {
	next     func() (*Record, error)
	targetKL float64

	record  *Record
	err     error
	done    bool
	stopped bool
	count   int
}

// Next produces the next Record and returns whether it succeeded
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.record != nil && it.targetKL > 0 &&
		it.record.ApproxKL > it.targetKL {
		it.done, it.stopped = true, true
		return false
	}

	r, err := it.next()
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if r == nil {
		it.done = true
		return false
	}

	it.record = r
	it.count++
	return true
}

// Record returns the most recent Record produced by Next
func (it *Iterator) Record() *Record {
	return it.record
}

// Err returns the first error encountered, if any
func (it *Iterator) Err() error {
	return it.err
}

// EarlyStopped returns whether iteration stopped because the target KL
// divergence was exceeded
func (it *Iterator) EarlyStopped() bool {
	return it.stopped
}

// Count returns the number of Records produced
func (it *Iterator) Count() int {
	return it.count
}
