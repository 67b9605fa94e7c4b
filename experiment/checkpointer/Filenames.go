package checkpointer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Filename returns a naming function which always returns filename, so
// that each checkpoint overwrites the last
func Filename(filename string) func() string {
	return func() string {
		return filename
	}
}

// FilenameEnumerator returns a naming function which numbers its
// filenames. The first call returns <base><start+1><ext> where ext is
// the extension of filename and base is the rest, the next returns
// <base><start+2><ext>, and so on.
func FilenameEnumerator(start int, filename string) func() string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	i := start
	return func() string {
		i++
		return fmt.Sprintf("%v%v%v", base, i, ext)
	}
}

// FileTimer returns a naming function which appends to filename the
// number of nanoseconds since January 1, 1970, before its extension.
// Interrupted runs with no checkpoint file save to
// FileTimer("temp-checkpoint.gob").
func FileTimer(filename string) func() string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return func() string {
		return fmt.Sprintf("%v-%v%v", base, time.Now().UnixNano(), ext)
	}
}
