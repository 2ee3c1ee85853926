package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// Suffix is appended to a locked path to form its lock marker file.
const Suffix = ".lock"

// ErrLockHeld is returned by Acquire when another process already holds the
// lock for a path. Acquisition never blocks waiting for a holder.
var ErrLockHeld = errors.New("lock already held by another process")

// Manager provides filesystem-based mutual exclusion over named paths.
//
// Each path is locked by taking an exclusive flock(2) on a `<path>.lock`
// marker file. The kernel releases the flock automatically when the owning
// process dies, so a crashed run cannot permanently block future runs.
//
// Every acquisition is recorded in a process-local registry so that all
// held locks can be released together on abnormal exit.
//
// In noop mode, locking is faked: no marker files are created and every
// acquisition is assumed to have succeeded.
type Manager struct {
	mu     sync.Mutex
	held   map[string]*os.File // Locked path -> open marker file
	noop   bool
	logger *slog.Logger
}

// NewManager creates a lock manager.
func NewManager(logger *slog.Logger, noop bool) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		held:   make(map[string]*os.File),
		noop:   noop,
		logger: logger,
	}
}

// Acquire obtains the lock for the given path, failing fast with ErrLockHeld
// if another process holds it. Acquiring a path this process already holds
// is a no-op.
func (m *Manager) Acquire(path string) error {
	m.logger.Debug("acquiring lock", "path", path)

	if m.noop {
		m.logger.Debug("lock acquired (noop)", "path", path)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[path]; ok {
		return nil
	}

	f, err := os.OpenFile(path+Suffix, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file for %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("%s: %w", path, ErrLockHeld)
		}
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}

	m.held[path] = f
	m.logger.Debug("lock acquired", "path", path)

	return nil
}

// Release releases the lock held on the given path. Releasing a path this
// process does not hold is a no-op.
func (m *Manager) Release(path string) error {
	if m.noop {
		m.logger.Debug("lock released (noop)", "path", path)
		return nil
	}

	m.mu.Lock()
	f, ok := m.held[path]
	delete(m.held, path)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := m.release(path, f)
	if err != nil {
		return err
	}

	m.logger.Debug("lock released", "path", path)
	return nil
}

// ReleaseAll releases every lock held by this process. Individual release
// errors are logged and swallowed so that one stuck lock does not prevent
// releasing the others. Intended for abnormal exit paths and the unlock
// recovery command.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	held := m.held
	m.held = make(map[string]*os.File)
	m.mu.Unlock()

	for path, f := range held {
		if err := m.release(path, f); err != nil {
			m.logger.Warn("failed to release lock", "path", path, "error", err)
		}
	}

	m.logger.Debug("all locks released", "count", len(held))
}

// HeldPaths returns the paths currently locked by this process.
func (m *Manager) HeldPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.held))
	for path := range m.held {
		paths = append(paths, path)
	}
	return paths
}

func (m *Manager) release(path string, f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to unlock %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close lock file for %s: %w", path, err)
	}

	// Best effort; a racing acquirer may have the file open, which is fine
	// since the flock, not the file's existence, is the arbiter.
	_ = os.Remove(path + Suffix)

	return nil
}

// SweepStale removes lock marker files under dir whose flock is no longer
// held by any live process. Markers held by a running process are left
// alone. Returns the paths of removed markers.
func SweepStale(dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}

		marker := filepath.Join(dir, entry.Name())
		f, err := os.OpenFile(marker, os.O_RDWR, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			logger.Warn("failed to open lock marker", "path", marker, "error", err)
			continue
		}

		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			// Held by a live process, leave it.
			_ = f.Close()
			continue
		}

		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()

		if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove stale lock marker", "path", marker, "error", err)
			continue
		}

		logger.Info("removed stale lock marker", "path", marker)
		removed = append(removed, marker)
	}

	return removed, nil
}
