// Package environment contains the reconciliation and deployment core: the
// manager facade, the pure set reconciler, and the engine that turns one
// desired environment into an installed, live, correctly-versioned
// directory via build-in-new-location-then-swap.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"envdeploy/internal/config"
	"envdeploy/internal/gitrepo"
	"envdeploy/internal/history"
	"envdeploy/internal/librarian"
	"envdeploy/internal/lockfile"
	"envdeploy/internal/notify"
	"envdeploy/pkg/fileutil"
)

// HistoryDBName is the deployment ledger file under the environment root.
const HistoryDBName = ".deployments.db"

// repository is the subset of the git gateway the manager drives.
type repository interface {
	Exists() bool
	Clone(ctx context.Context) error
	Sync(ctx context.Context) error
	Branches(ctx context.Context) ([]string, error)
	BranchRevision(ctx context.Context, branch string) (string, error)
	CheckoutEnvironment(ctx context.Context, branch, revision, targetDir string) error
	WorktreeRevision(ctx context.Context, dir string) (string, error)
}

// moduleInstaller installs third-party puppet modules into a checkout.
type moduleInstaller interface {
	ManifestPresent(dir string) bool
	Install(ctx context.Context, environment, dir string) error
}

// cacheFlusher flushes a puppet server's cached view of an environment.
type cacheFlusher interface {
	FlushEnvironmentCache(ctx context.Context, environment string) error
}

// Manager composes the lock manager, repository gateway, reconciler,
// deployment engine and notifier into the operations exposed by the
// command surface.
type Manager struct {
	cfg       *config.Config
	blacklist *regexp.Regexp
	locks     *lockfile.Manager
	repo      repository
	installer moduleInstaller
	notifier  cacheFlusher     // nil when cache flushing is disabled
	hist      *history.History // nil in noop mode
	logger    *slog.Logger
	noop      bool
}

// NewManager validates the configuration and wires up a manager.
// Configuration problems surface here, before any lock is taken.
func NewManager(cfg *config.Config, logger *slog.Logger, noop bool) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blacklist, err := cfg.BlacklistPattern()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		blacklist: blacklist,
		locks:     lockfile.NewManager(logger, noop),
		repo:      gitrepo.New(cfg.GitURL, cfg.MasterRepoPath(), logger),
		installer: librarian.NewInstaller(cfg.LibrarianPuppetPath, cfg.PuppetCertFile, cfg.PuppetKeyFile, cfg.PuppetCAFile, logger),
		logger:    logger,
		noop:      noop,
	}

	if cfg.FlushEnvironmentCache && !noop {
		notifier, err := notify.New(cfg.PuppetServer, cfg.PuppetCertFile, cfg.PuppetKeyFile, cfg.PuppetCAFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure cache flush notifier: %w", err)
		}
		m.notifier = notifier
	}

	if !noop {
		hist, err := history.Open(filepath.Join(cfg.EnvironmentDir, HistoryDBName))
		if err != nil {
			return nil, fmt.Errorf("failed to open deployment history: %w", err)
		}
		m.hist = hist
	}

	return m, nil
}

// Close releases resources held by the manager. It does not release locks;
// see ReleaseLocks.
func (m *Manager) Close() error {
	if m.hist != nil {
		return m.hist.Close()
	}
	return nil
}

// ReleaseLocks releases every lock this process holds. Invoked
// unconditionally when an error propagates out of a command.
func (m *Manager) ReleaseLocks() {
	m.locks.ReleaseAll()
}

// History exposes the deployment ledger, nil in noop mode.
func (m *Manager) History() *history.History {
	return m.hist
}

func (m *Manager) environmentPath(name string) string {
	return filepath.Join(m.cfg.EnvironmentDir, name)
}

// ensureMaster makes sure the master repository exists, cloning it when
// absent. In noop mode absence is signaled as ErrMasterRepositoryMissing
// because further operations cannot be simulated properly.
func (m *Manager) ensureMaster(ctx context.Context) error {
	if m.repo.Exists() {
		return nil
	}

	if m.noop {
		m.logger.Error("master repository does not exist, further operations cannot be simulated properly",
			"path", m.cfg.MasterRepoPath())
		return fmt.Errorf("%w: %s", ErrMasterRepositoryMissing, m.cfg.MasterRepoPath())
	}

	masterPath := m.cfg.MasterRepoPath()
	if err := m.locks.Acquire(masterPath); err != nil {
		return err
	}
	defer func() {
		if err := m.locks.Release(masterPath); err != nil {
			m.logger.Warn("failed to release master repository lock", "error", err)
		}
	}()

	return m.repo.Clone(ctx)
}

// refresh syncs the master repository and returns the current remote branch
// set. The master lock is held across the fetch and the branch read so no
// branch state is observed mid-fetch; it is released before per-environment
// work starts.
func (m *Manager) refresh(ctx context.Context) ([]string, error) {
	if err := m.ensureMaster(ctx); err != nil {
		return nil, err
	}

	masterPath := m.cfg.MasterRepoPath()
	if err := m.locks.Acquire(masterPath); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.locks.Release(masterPath); err != nil {
			m.logger.Warn("failed to release master repository lock", "error", err)
		}
	}()

	if m.noop {
		m.logger.Info("fetching changes from origin (noop)")
	} else if err := m.repo.Sync(ctx); err != nil {
		return nil, err
	}

	return m.repo.Branches(ctx)
}

// InstalledNames returns the names of environments that have a live pointer
// under the environment root.
func (m *Manager) InstalledNames() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.EnvironmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if name == m.cfg.MasterRepoName {
			continue
		}
		if !ValidName(name, m.blacklist) {
			continue
		}
		if !fileutil.IsSymlink(filepath.Join(m.cfg.EnvironmentDir, name)) {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

// Status recomputes the reconciliation sets against current repository and
// filesystem state.
func (m *Manager) Status(ctx context.Context) (Sets, error) {
	branches, err := m.refresh(ctx)
	if err != nil {
		return Sets{}, err
	}

	installed, err := m.InstalledNames()
	if err != nil {
		return Sets{}, err
	}

	return Reconcile(branches, installed, m.blacklist), nil
}

// ListAvailable returns the environments that exist as branches in the
// master repository.
func (m *Manager) ListAvailable(ctx context.Context) ([]string, error) {
	sets, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	return sets.Available, nil
}

// ListInstalled returns the environments deployed under the environment
// root. Purely local; no fetch is performed.
func (m *Manager) ListInstalled() ([]string, error) {
	installed, err := m.InstalledNames()
	if err != nil {
		return nil, err
	}
	return Reconcile(nil, installed, m.blacklist).Installed, nil
}

// ListMissing returns the environments that exist upstream but are not
// installed locally.
func (m *Manager) ListMissing(ctx context.Context) ([]string, error) {
	sets, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	return sets.Missing, nil
}

// ListObsolete returns the environments installed locally that no longer
// exist upstream.
func (m *Manager) ListObsolete(ctx context.Context) ([]string, error) {
	sets, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	return sets.Obsolete, nil
}

// Revision returns the commit id checked out for an installed environment.
func (m *Manager) Revision(ctx context.Context, name string) (string, error) {
	if !ValidName(name, m.blacklist) {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}

	envPath := m.environmentPath(name)
	if _, err := os.Lstat(envPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	return m.repo.WorktreeRevision(ctx, envPath)
}

// Initialise sets up a new environment directory: it clones the master
// repository when absent and deploys every available environment.
func (m *Manager) Initialise(ctx context.Context) error {
	if err := m.ensureMaster(ctx); err != nil {
		return err
	}
	return m.UpdateAll(ctx, false)
}

// UnlockAll is the standalone recovery operation: it releases every lock
// held by this process and sweeps stale lock markers left by dead ones.
func (m *Manager) UnlockAll() ([]string, error) {
	m.locks.ReleaseAll()
	return lockfile.SweepStale(m.cfg.EnvironmentDir, m.logger)
}
