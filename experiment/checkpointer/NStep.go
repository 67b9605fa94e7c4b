package checkpointer

// nStep implements checkpointing every N updates
type nStep struct {
	interval int

	// bundle returns the state to save
	bundle func() (*Bundle, error)

	// filename returns the string filename of the file to save the
	// Bundle in.
	//
	// If each Bundle should be saved in a separate file with each file
	// having an incremented number as a suffix (e.g. ckpt1.gob,
	// ckpt2.gob, ..., ckptK.gob), then simply use the static function
	// FilenameEnumerator, which will return a function that will
	// enumerate filenames.
	//
	// If each Bundle should overwrite the last, use Filename.
	//
	// Otherwise, if each Bundle should be saved in a separate file, but
	// the filename does not matter, use the static function FileTimer
	// to generate the required naming function. For example:
	//
	// n := NewNStep(10, bundle, FileTimer("checkpoint.gob"))
	filename func() string
}

// NewNStep returns a checkpointer that checkpoints every n updates. If
// n <= 0, nothing is ever checkpointed.
func NewNStep(n int, bundle func() (*Bundle, error),
	filename func() string) Checkpointer {
	return &nStep{
		interval: n,
		bundle:   bundle,
		filename: filename,
	}
}

// Checkpoint saves the current Bundle if iteration is a positive
// multiple of the checkpointing interval
func (n *nStep) Checkpoint(iteration int) error {
	if n.interval <= 0 || iteration <= 0 || iteration%n.interval != 0 {
		return nil
	}
	b, err := n.bundle()
	if err != nil {
		return err
	}
	return Save(n.filename(), b)
}
