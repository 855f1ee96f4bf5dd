package pipeline

import (
	"errors"
	"io"
	"io/fs"
	"sync"

	"github.com/cyclopcam/dsprep/pkg/storage"
	"github.com/cyclopcam/logs"
)

// trackedOutput remembers every file written through it, so that a failed
// run can remove its partial output.
type trackedOutput struct {
	storage.Storage

	mu    sync.Mutex
	names []string
}

func newTrackedOutput(out storage.Storage) *trackedOutput {
	return &trackedOutput{Storage: out}
}

func (t *trackedOutput) WriteFile(name string) (io.WriteCloser, error) {
	w, err := t.Storage.WriteFile(name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.names = append(t.names, name)
	t.mu.Unlock()
	return w, nil
}

// discard deletes every file written so far. Files that existed before the
// run and were overwritten are deleted too.
func (t *trackedOutput) discard(log logs.Log) {
	t.mu.Lock()
	names := t.names
	t.names = nil
	t.mu.Unlock()
	removed := 0
	for _, name := range names {
		err := t.Storage.DeleteFile(name)
		if err == nil {
			removed++
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("Failed to remove partial output %v: %v", t.Describe(name), err)
		}
	}
	if removed != 0 {
		log.Infof("Removed %v files of the failed run from %v", removed, t.Describe(""))
	}
}
