// Package singleton implements the pid-file guard that prevents two daemons
// from racing on the same host (spec.md §4.9). There is deliberately no
// fcntl-style advisory locking here: the mere presence of the file at the
// well-known path is the signal, exactly as spec.md specifies.
package singleton

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio"
)

// ErrAlreadyRunning is returned by Acquire when the pid-file already exists.
var ErrAlreadyRunning = errors.New("singleton: pid-file already exists, another instance is running")

// Guard holds the acquired pid-file path; Release removes it.
type Guard struct {
	path string
}

// Acquire aborts with ErrAlreadyRunning if path exists, then atomically
// creates it containing the calling process's pid. The atomic
// create-then-rename (via renameio) avoids ever leaving a half-written
// pid-file behind if the daemon is killed mid-write.
func Acquire(path string) (*Guard, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyRunning
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	body := []byte(fmt.Sprintf("%d\n", os.Getpid()))
	if err := renameio.WriteFile(path, body, 0o644); err != nil {
		return nil, err
	}
	return &Guard{path: path}, nil
}

// Release removes the pid-file on clean shutdown.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	err := os.Remove(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
