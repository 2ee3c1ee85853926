package environment

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"envdeploy/pkg/fileutil"
)

// layoutDir creates a clone directory under the environment root.
func layoutDir(t *testing.T, root, name string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// layoutLink creates a relative live pointer under the environment root.
func layoutLink(t *testing.T, root, name, target string) {
	t.Helper()
	if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
		t.Fatal(err)
	}
}

func TestCleanup_RemovesExactlyUnreferencedClones(t *testing.T) {
	repo := newFakeRepo(nil)
	m := newTestManager(t, repo, &fakeInstaller{}, false)
	root := m.cfg.EnvironmentDir

	suffixOld := revA[:12]
	suffixNew := revB[:12]

	// Live pointers: A -> second clone, B -> first clone
	dirA1 := layoutDir(t, root, ".enva-"+suffixOld)
	dirA2 := layoutDir(t, root, ".enva-"+suffixNew)
	dirB1 := layoutDir(t, root, ".envb-"+suffixOld)
	dirB2 := layoutDir(t, root, ".envb-"+suffixNew)
	dirC1 := layoutDir(t, root, ".envc-"+suffixOld)

	layoutLink(t, root, "enva", filepath.Base(dirA2))
	layoutLink(t, root, "envb", filepath.Base(dirB1))

	removed, err := m.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	expected := []string{dirA1, dirB2, dirC1}
	if !reflect.DeepEqual(removed, expected) {
		t.Errorf("Cleanup removed %v, expected %v", removed, expected)
	}

	for _, path := range expected {
		if fileutil.DirExists(path) {
			t.Errorf("stale clone %s still present", path)
		}
	}
	for _, path := range []string{dirA2, dirB1} {
		if !fileutil.DirExists(path) {
			t.Errorf("referenced clone %s was removed", path)
		}
	}
}

func TestStaleClones_IgnoresForeignEntries(t *testing.T) {
	repo := newFakeRepo(nil)
	m := newTestManager(t, repo, &fakeInstaller{}, false)
	root := m.cfg.EnvironmentDir

	// Master repo, ledger, lock markers and arbitrary files must be ignored
	layoutDir(t, root, m.cfg.MasterRepoName)
	layoutDir(t, root, ".git-cache")
	if err := os.WriteFile(filepath.Join(root, ".deployments.db"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "production.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// Blacklisted clones are not touched either
	layoutDir(t, root, ".live_production-"+revA[:12])

	stale, err := m.StaleClones()
	if err != nil {
		t.Fatalf("StaleClones failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale clones, got %v", stale)
	}
}

func TestCleanup_Noop(t *testing.T) {
	repo := newFakeRepo(nil)
	m := newTestManager(t, repo, &fakeInstaller{}, true)
	root := m.cfg.EnvironmentDir

	stray := layoutDir(t, root, ".enva-"+revA[:12])

	removed, err := m.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("noop cleanup reported removals: %v", removed)
	}
	if !fileutil.DirExists(stray) {
		t.Error("noop cleanup removed a directory")
	}
}

func TestResolveTarget_RelativeToPointerLocation(t *testing.T) {
	root := t.TempDir()
	clone := layoutDir(t, root, ".enva-"+revA[:12])
	layoutLink(t, root, "enva", filepath.Base(clone))

	// Resolution must not depend on the process working directory
	resolved, err := fileutil.ResolveTarget(filepath.Join(root, "enva"))
	if err != nil {
		t.Fatalf("ResolveTarget failed: %v", err)
	}
	if resolved != clone {
		t.Errorf("ResolveTarget = %q, expected %q", resolved, clone)
	}
}
