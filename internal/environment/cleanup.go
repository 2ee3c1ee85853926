package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"envdeploy/pkg/fileutil"
)

// clonePattern matches versioned clone directory names: a hidden directory
// named for the environment plus a short revision suffix.
var clonePattern = regexp.MustCompile(`^\.([A-Za-z0-9_]+)-([0-9a-f]{7,40})$`)

// StaleClones lists versioned clone directories under the environment root
// that are not the current target of any live pointer. Stale clones are
// left behind by interrupted runs and by the deliberate deferred delete
// after a pointer swap.
func (m *Manager) StaleClones() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.EnvironmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment directory: %w", err)
	}

	referenced := make(map[string]bool)
	var candidates []string

	for _, entry := range entries {
		name := entry.Name()
		if name == m.cfg.MasterRepoName {
			continue
		}

		path := filepath.Join(m.cfg.EnvironmentDir, name)

		if fileutil.IsSymlink(path) {
			if !ValidName(name, m.blacklist) {
				continue
			}
			// Pointers are stored as relative symlinks, so resolution must
			// be relative to the pointer's location.
			target, err := fileutil.ResolveTarget(path)
			if err != nil {
				m.logger.Warn("failed to resolve live pointer", "path", path, "error", err)
				continue
			}
			referenced[target] = true
			continue
		}

		match := clonePattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		if m.blacklist.MatchString(match[1]) {
			m.logger.Debug("ignoring blacklisted environment clone", "path", path)
			continue
		}
		if entry.IsDir() {
			candidates = append(candidates, path)
		}
	}

	var stale []string
	for _, candidate := range candidates {
		if !referenced[candidate] {
			m.logger.Debug("stale environment clone detected", "path", candidate)
			stale = append(stale, candidate)
		}
	}

	sort.Strings(stale)
	return stale, nil
}

// Cleanup removes every stale clone directory, holding the owning
// environment's lock while each one is deleted. Returns the removed paths.
func (m *Manager) Cleanup() ([]string, error) {
	stale, err := m.StaleClones()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, clone := range stale {
		match := clonePattern.FindStringSubmatch(filepath.Base(clone))
		if match == nil {
			continue
		}
		envPath := m.environmentPath(match[1])

		if err := m.locks.Acquire(envPath); err != nil {
			return removed, err
		}

		if m.noop {
			m.logger.Info("would remove stale environment clone (noop)", "path", clone)
		} else {
			m.logger.Info("removing stale environment clone", "path", clone)
			if err := os.RemoveAll(clone); err != nil {
				if relErr := m.locks.Release(envPath); relErr != nil {
					m.logger.Warn("failed to release environment lock", "path", envPath, "error", relErr)
				}
				return removed, fmt.Errorf("failed to remove stale clone %s: %w", clone, err)
			}
			removed = append(removed, clone)
		}

		if err := m.locks.Release(envPath); err != nil {
			m.logger.Warn("failed to release environment lock", "path", envPath, "error", err)
		}
	}

	return removed, nil
}
