// Package gitrepo wraps operations against the master git repository and
// against per-environment working checkouts that share its object storage.
// All operations drive the git binary; the error carries the command output
// so failures can be diagnosed without re-running.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"envdeploy/pkg/cmdutil"
)

// DefaultTimeout bounds a single git invocation. Fetches over slow links
// dominate; everything else is local.
const DefaultTimeout = 10 * time.Minute

// ErrUnknownBranch is returned when a revision lookup names a branch that
// does not exist in the master repository.
var ErrUnknownBranch = errors.New("unknown branch")

// CommandError is a failed git invocation, with its combined output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Repository is the gateway to the single master repository.
type Repository struct {
	// URL is the remote the master repository is cloned from.
	URL string

	// Path is the on-disk location of the master repository.
	Path string

	// Timeout bounds each git invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	logger *slog.Logger
}

// New creates a repository gateway for the master repository at path.
func New(url, path string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		URL:    url,
		Path:   path,
		logger: logger,
	}
}

// Exists reports whether the master repository is present on disk.
func (r *Repository) Exists() bool {
	_, err := r.git(context.Background(), r.Path, "rev-parse", "--git-dir")
	return err == nil
}

// Clone clones the configured URL into the master repository path.
func (r *Repository) Clone(ctx context.Context) error {
	r.logger.Info("cloning master repository", "url", r.URL, "path", r.Path)
	_, err := r.git(ctx, "", "clone", r.URL, r.Path)
	return err
}

// Sync fetches from the remote and prunes remote-tracking branches that no
// longer exist upstream. Pruning is mandatory: a stale remote branch would
// make a deleted environment appear available forever.
func (r *Repository) Sync(ctx context.Context) error {
	r.logger.Debug("fetching changes", "path", r.Path)
	_, err := r.git(ctx, r.Path, "fetch", "--prune", "origin")
	return err
}

// Branches returns the current set of remote branch names.
func (r *Repository) Branches(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, r.Path, "for-each-ref", "--format=%(refname:strip=3)", "refs/remotes/origin")
	if err != nil {
		return nil, err
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || name == "HEAD" {
			continue
		}
		branches = append(branches, name)
	}

	return branches, nil
}

// BranchRevision resolves the tip commit of a remote branch.
func (r *Repository) BranchRevision(ctx context.Context, branch string) (string, error) {
	out, err := r.git(ctx, r.Path, "rev-parse", "--verify", "--quiet",
		fmt.Sprintf("refs/remotes/origin/%s^{commit}", branch))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownBranch, branch)
	}
	return strings.TrimSpace(out), nil
}

// CheckoutEnvironment creates a working checkout at targetDir that shares
// object storage with the master repository, then hard-resets it to the
// given revision and removes untracked files so the tree exactly matches.
func (r *Repository) CheckoutEnvironment(ctx context.Context, branch, revision, targetDir string) error {
	r.logger.Info("checking out environment", "branch", branch, "revision", revision, "path", targetDir)

	if _, err := r.git(ctx, "", "clone", "--shared", "--no-checkout", r.Path, targetDir); err != nil {
		return err
	}

	if _, err := r.git(ctx, targetDir, "reset", "--hard", revision); err != nil {
		return err
	}

	if _, err := r.git(ctx, targetDir, "clean", "-ffdx"); err != nil {
		return err
	}

	// The hard reset is authoritative; drift here points at a hook or
	// prior corruption, so warn rather than abort.
	out, err := r.git(ctx, targetDir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "" {
		r.logger.Warn("working tree not clean after reset", "path", targetDir, "status", strings.TrimSpace(out))
	}

	return nil
}

// WorktreeRevision resolves the commit id checked out at a path.
func (r *Repository) WorktreeRevision(ctx context.Context, dir string) (string, error) {
	out, err := r.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Repository) git(ctx context.Context, dir string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	cmdParts := append([]string{"git"}, args...)
	r.logger.Debug("running command", "command", cmdutil.FormatCommand(cmdParts), "dir", dir)

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: dir, Timeout: timeout}, cmdParts)
	if err != nil {
		return "", &CommandError{Args: args, Output: string(result.Output), Err: err}
	}

	return string(result.Output), nil
}
