package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"testing"

	"envdeploy/internal/config"
	"envdeploy/internal/gitrepo"
	"envdeploy/internal/lockfile"
	"envdeploy/pkg/fileutil"
)

// fakeRepo is an in-memory repository gateway for engine tests.
type fakeRepo struct {
	mu        sync.Mutex
	exists    bool
	branches  map[string]string // branch -> tip revision
	worktrees map[string]string // checkout dir -> revision
	syncCalls int
	checkouts int
}

func newFakeRepo(branches map[string]string) *fakeRepo {
	return &fakeRepo{
		exists:    true,
		branches:  branches,
		worktrees: make(map[string]string),
	}
}

func (f *fakeRepo) Exists() bool { return f.exists }

func (f *fakeRepo) Clone(ctx context.Context) error {
	f.exists = true
	return nil
}

func (f *fakeRepo) Sync(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return nil
}

func (f *fakeRepo) Branches(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeRepo) BranchRevision(ctx context.Context, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	revision, ok := f.branches[branch]
	if !ok {
		return "", fmt.Errorf("%w: %s", gitrepo.ErrUnknownBranch, branch)
	}
	return revision, nil
}

func (f *fakeRepo) CheckoutEnvironment(ctx context.Context, branch, revision, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(targetDir, "site.pp"), []byte(revision+"\n"), 0o644); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts++
	f.worktrees[targetDir] = revision
	return nil
}

func (f *fakeRepo) WorktreeRevision(ctx context.Context, dir string) (string, error) {
	path := dir
	if fileutil.IsSymlink(dir) {
		resolved, err := fileutil.ResolveTarget(dir)
		if err != nil {
			return "", err
		}
		path = resolved
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	revision, ok := f.worktrees[path]
	if !ok {
		return "", fmt.Errorf("no worktree at %s", dir)
	}
	return revision, nil
}

// fakeInstaller lets tests control manifest presence and failure injection.
type fakeInstaller struct {
	manifest   bool
	installErr error
	installs   int
}

func (f *fakeInstaller) ManifestPresent(dir string) bool { return f.manifest }

func (f *fakeInstaller) Install(ctx context.Context, environment, dir string) error {
	f.installs++
	return f.installErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager wires a manager around fakes and a temp environment root.
func newTestManager(t *testing.T, repo *fakeRepo, installer *fakeInstaller, noop bool) *Manager {
	t.Helper()

	dir := t.TempDir()
	logger := testLogger()

	cfg := config.Default()
	cfg.GitURL = "git://example.com/puppet.git"
	cfg.EnvironmentDir = dir

	return &Manager{
		cfg:       cfg,
		blacklist: regexp.MustCompile(cfg.Blacklist),
		locks:     lockfile.NewManager(logger, noop),
		repo:      repo,
		installer: installer,
		logger:    logger,
		noop:      noop,
	}
}
