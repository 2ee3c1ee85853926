package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"envdeploy/internal/gitrepo"
	"envdeploy/internal/history"
	"envdeploy/pkg/fileutil"
)

// Action describes what an update did (or would do) for one environment.
type Action string

const (
	ActionDeployed    Action = "deployed"
	ActionUpToDate    Action = "up-to-date"
	ActionWouldDeploy Action = "would-deploy"
	ActionRemoved     Action = "removed"
)

// Result reports the outcome of updating or removing one environment.
type Result struct {
	Environment string
	Action      Action
	Revision    string        // Desired (and now live) revision
	Installed   string        // Revision that was live before, if any
	Previous    string        // Clone directory that was live before, if any
	Duration    time.Duration
}

// shortRevision derives the directory suffix for a versioned clone.
func shortRevision(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}

func (m *Manager) clonePath(name, revision string) string {
	return filepath.Join(m.cfg.EnvironmentDir, fmt.Sprintf(".%s-%s", name, shortRevision(revision)))
}

// Update deploys or refreshes a single environment by name, syncing the
// master repository first.
func (m *Manager) Update(ctx context.Context, name string, force bool) (*Result, error) {
	if !ValidName(name, m.blacklist) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	if _, err := m.refresh(ctx); err != nil {
		return nil, err
	}

	return m.deployOne(ctx, name, force)
}

// deployOne is the per-environment state machine: resolve the desired
// revision, short-circuit when already live, otherwise build a fresh
// versioned clone, install modules, and atomically republish the live
// pointer. The environment lock is held for the whole operation.
func (m *Manager) deployOne(ctx context.Context, name string, force bool) (*Result, error) {
	envPath := m.environmentPath(name)

	if err := m.locks.Acquire(envPath); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.locks.Release(envPath); err != nil {
			m.logger.Warn("failed to release environment lock", "environment", name, "error", err)
		}
	}()

	start := time.Now()

	desired, err := m.repo.BranchRevision(ctx, name)
	if err != nil {
		if errors.Is(err, gitrepo.ErrUnknownBranch) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
		}
		return nil, err
	}

	result := &Result{
		Environment: name,
		Revision:    desired,
	}

	if fileutil.IsSymlink(envPath) {
		if target, err := fileutil.ResolveTarget(envPath); err == nil {
			result.Previous = target
		}

		installed, err := m.repo.WorktreeRevision(ctx, envPath)
		if err != nil {
			m.logger.Warn("failed to resolve installed revision, treating as stale",
				"environment", name, "error", err)
		}
		result.Installed = installed

		if installed == desired && !force {
			m.logger.Info("environment already up to date", "environment", name, "revision", desired)
			result.Action = ActionUpToDate
			return result, nil
		}
	}

	if m.noop {
		m.logger.Info("would deploy environment (noop)",
			"environment", name, "revision", desired, "installed", result.Installed)
		result.Action = ActionWouldDeploy
		return result, nil
	}

	m.logger.Info("deploying environment", "environment", name, "revision", desired)

	cloneDir := m.clonePath(name, desired)
	// A leftover directory at the same path means an earlier run for this
	// exact revision was interrupted; rebuild rather than trust it.
	if _, err := os.Lstat(cloneDir); err == nil {
		m.logger.Warn("removing leftover clone from interrupted run", "path", cloneDir)
		if err := os.RemoveAll(cloneDir); err != nil {
			return nil, fmt.Errorf("failed to remove leftover clone %s: %w", cloneDir, err)
		}
	}

	if err := m.repo.CheckoutEnvironment(ctx, name, desired, cloneDir); err != nil {
		m.recordDeploy(ctx, result, start, err)
		return nil, err
	}

	if m.installer.ManifestPresent(cloneDir) {
		if err := m.installer.Install(ctx, name, cloneDir); err != nil {
			// The previous live copy stays untouched; the partial clone
			// becomes a candidate for cleanup.
			m.recordDeploy(ctx, result, start, err)
			return nil, err
		}
	}

	if err := m.publish(name, envPath, cloneDir); err != nil {
		m.recordDeploy(ctx, result, start, err)
		return nil, err
	}

	result.Action = ActionDeployed
	result.Duration = time.Since(start)
	m.recordDeploy(ctx, result, start, nil)

	m.flushCache(ctx, name)

	m.logger.Info("environment deployed",
		"environment", name, "revision", desired, "duration", result.Duration)

	return result, nil
}

// publish points the live pointer at the freshly built clone directory.
// The normal path is a single atomic rename; a pre-existing plain directory
// (from before this tool managed the environment) is converted to the
// symlink layout via move-aside, which is necessarily non-atomic.
func (m *Manager) publish(name, envPath, cloneDir string) error {
	relTarget := filepath.Base(cloneDir)

	info, err := os.Lstat(envPath)
	if err == nil && info.Mode()&os.ModeSymlink == 0 {
		m.logger.Warn("environment is not currently a symlink, update is happening non-atomically",
			"environment", name)

		asidePath := envPath + ".replaced"
		if err := os.RemoveAll(asidePath); err != nil {
			return fmt.Errorf("failed to clear move-aside path: %w", err)
		}
		if err := os.Rename(envPath, asidePath); err != nil {
			return fmt.Errorf("failed to move old environment directory aside: %w", err)
		}
		if err := os.Symlink(relTarget, envPath); err != nil {
			return fmt.Errorf("failed to create environment symlink: %w", err)
		}
		if err := os.RemoveAll(asidePath); err != nil {
			m.logger.Warn("failed to remove old environment directory", "path", asidePath, "error", err)
		}
		return nil
	}

	if err := fileutil.UpdateSymlinkAtomic(envPath, relTarget); err != nil {
		return err
	}

	// The superseded clone directory is deliberately left in place for
	// cleanup: deleting it now would invalidate in-flight readers that
	// opened files through the old path just before the swap.
	return nil
}

// UpdateAll reconciles every environment: deploys missing ones, refreshes
// stale ones, and removes live pointers for obsolete ones. Per-environment
// failures are logged and tallied without aborting the rest.
func (m *Manager) UpdateAll(ctx context.Context, force bool) error {
	branches, err := m.refresh(ctx)
	if err != nil {
		return err
	}

	installed, err := m.InstalledNames()
	if err != nil {
		return err
	}

	sets := Reconcile(branches, installed, m.blacklist)

	failures := 0
	for _, name := range sets.Available {
		if _, err := m.deployOne(ctx, name, force); err != nil {
			m.logger.Error("failed to update environment", "environment", name, "error", err)
			failures++
		}
	}

	for _, name := range sets.Obsolete {
		if _, err := m.Remove(ctx, name); err != nil {
			m.logger.Error("failed to remove environment", "environment", name, "error", err)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d environment update(s) failed", failures)
	}

	return nil
}

// Remove retires an environment's live pointer. The orphaned clone
// directory is reclaimed later by Cleanup. A plain directory (never
// converted to the symlink layout) is removed outright.
func (m *Manager) Remove(ctx context.Context, name string) (*Result, error) {
	if !ValidName(name, m.blacklist) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	envPath := m.environmentPath(name)

	if err := m.locks.Acquire(envPath); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.locks.Release(envPath); err != nil {
			m.logger.Warn("failed to release environment lock", "environment", name, "error", err)
		}
	}()

	result := &Result{Environment: name, Action: ActionRemoved}

	info, err := os.Lstat(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to stat environment %s: %w", name, err)
	}

	if m.noop {
		m.logger.Info("would remove environment (noop)", "environment", name)
		return result, nil
	}

	m.logger.Info("removing environment", "environment", name)

	if info.Mode()&os.ModeSymlink != 0 {
		if target, err := fileutil.ResolveTarget(envPath); err == nil {
			result.Previous = target
		}
		if err := os.Remove(envPath); err != nil {
			return nil, fmt.Errorf("failed to remove environment symlink: %w", err)
		}
	} else if err := os.RemoveAll(envPath); err != nil {
		return nil, fmt.Errorf("failed to remove environment directory: %w", err)
	}

	if m.hist != nil {
		record := &history.Record{
			Environment: name,
			Action:      string(ActionRemoved),
			Status:      history.StatusSucceeded,
		}
		if _, err := m.hist.Append(ctx, record); err != nil {
			m.logger.Warn("failed to record removal in history", "environment", name, "error", err)
		}
	}

	return result, nil
}

// flushCache asks the puppet server to drop its cached view of the
// environment. Best effort: the deployment already succeeded.
func (m *Manager) flushCache(ctx context.Context, name string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.FlushEnvironmentCache(ctx, name); err != nil {
		m.logger.Warn("failed to flush environment cache", "environment", name, "error", err)
	}
}

func (m *Manager) recordDeploy(ctx context.Context, result *Result, start time.Time, deployErr error) {
	if m.hist == nil {
		return
	}

	record := &history.Record{
		Environment:     result.Environment,
		Revision:        result.Revision,
		Previous:        result.Installed,
		Action:          string(ActionDeployed),
		Status:          history.StatusSucceeded,
		StartedAt:       start,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if deployErr != nil {
		record.Status = history.StatusFailed
		record.ErrorMessage = deployErr.Error()
	}

	if _, err := m.hist.Append(ctx, record); err != nil {
		m.logger.Warn("failed to record deployment in history",
			"environment", result.Environment, "error", err)
	}
}
