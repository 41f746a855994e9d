package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// FileSnapshots persists the identity snapshot as a JSON file. It backs the
// optimistic UI paint between a process restart and the session restore; it
// is never consulted for authentication decisions.
type FileSnapshots struct {
	path string
	mu   sync.Mutex
}

// compile-time check
var _ taskdesk.SnapshotStore = (*FileSnapshots)(nil)

// NewFileSnapshots creates a snapshot store at the given path.
func NewFileSnapshots(path string) *FileSnapshots {
	return &FileSnapshots{path: path}
}

// Save writes the identity snapshot, creating parent directories as needed.
func (f *FileSnapshots) Save(id taskdesk.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("taskdesk/session: encode snapshot: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("taskdesk/session: snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("taskdesk/session: write snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when none exists.
func (f *FileSnapshots) Load() (*taskdesk.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskdesk/session: read snapshot: %w", err)
	}
	var id taskdesk.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("taskdesk/session: decode snapshot: %w", err)
	}
	return &id, nil
}

// Clear removes the snapshot file. Missing files are not an error.
func (f *FileSnapshots) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("taskdesk/session: remove snapshot: %w", err)
	}
	return nil
}
