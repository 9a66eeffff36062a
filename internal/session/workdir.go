package session

import (
	"fmt"
	"os"
	"sync"
)

// cwdMu guards the process working directory. Nothing else in the process
// may rely on the cwd while a scoped change is in effect.
var cwdMu sync.Mutex

// WithWorkingDir runs fn with the working directory set to dir and restores
// the previous one on every exit path, panics included.
func WithWorkingDir(dir string, fn func() error) (err error) {
	cwdMu.Lock()
	defer cwdMu.Unlock()

	prev, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("chdir %s: %w", dir, err)
	}
	defer func() {
		if cerr := os.Chdir(prev); cerr != nil && err == nil {
			err = fmt.Errorf("restore working directory: %w", cerr)
		}
	}()
	return fn()
}
