package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinebyhub/catalog-sync/internal/fsutil"
)

const (
	lockDirName   = ".catalog-sync.lock"
	lockOwnerFile = "owner.json"
)

// ErrLocked is returned when another process holds the store lock.
var ErrLocked = errors.New("store is locked")

// Lock is a held store lock. The zero value releases nothing.
type Lock struct {
	dir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// LockPath returns the lock directory guarding the store at storePath.
func LockPath(storePath string) string {
	return filepath.Join(filepath.Dir(storePath), lockDirName)
}

// AcquireLock takes the lock beside the store. It fails fast with ErrLocked
// when the lock is already held.
func AcquireLock(storePath string) (Lock, error) {
	if strings.TrimSpace(storePath) == "" {
		return Lock{}, fmt.Errorf("store path is required")
	}

	dir := LockPath(storePath)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return Lock{}, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := fsutil.ReadJSON(filepath.Join(dir, lockOwnerFile), &owner); readErr == nil && owner.PID > 0 {
				return Lock{}, fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
					ErrLocked, storePath, owner.PID, owner.CreatedAt, owner.Hostname)
			}
			return Lock{}, fmt.Errorf("%w: %s", ErrLocked, storePath)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", storePath, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := fsutil.WriteJSON(filepath.Join(dir, lockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(dir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", storePath, err)
	}
	return Lock{dir: dir}, nil
}

// Release removes the lock directory.
func (l Lock) Release() error {
	if l.dir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.dir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
