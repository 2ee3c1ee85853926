// Package librarian invokes the third-party puppet module installer
// (librarian-puppet) against an environment checkout.
package librarian

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"envdeploy/pkg/cmdutil"
)

// Manifest is the dependency manifest file librarian-puppet installs from.
const Manifest = "Puppetfile"

// DefaultTimeout bounds one installer run. Module installs pull from the
// forge and from git, so this is generous.
const DefaultTimeout = 15 * time.Minute

// InstallError is a failed installer run, with its combined output.
type InstallError struct {
	Environment string
	Output      string
	Err         error
}

func (e *InstallError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("failed to install puppet modules for environment %s: %v", e.Environment, e.Err)
	}
	return fmt.Sprintf("failed to install puppet modules for environment %s: %v: %s", e.Environment, e.Err, out)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer runs librarian-puppet against environment checkouts.
type Installer struct {
	// Path is the librarian-puppet executable.
	Path string

	// TLS client identity passed to the installer for the
	// puppet-server-facing parts of module resolution.
	CertFile string
	KeyFile  string
	CAFile   string

	// Timeout bounds one installer run. Zero means DefaultTimeout.
	Timeout time.Duration

	logger *slog.Logger
}

// NewInstaller creates an installer gateway.
func NewInstaller(path, certFile, keyFile, caFile string, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		Path:     path,
		CertFile: certFile,
		KeyFile:  keyFile,
		CAFile:   caFile,
		logger:   logger,
	}
}

// ManifestPresent reports whether the checkout at dir carries a dependency
// manifest.
func (i *Installer) ManifestPresent(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, Manifest))
	return err == nil && info.Mode().IsRegular()
}

// Install runs the installer in the checkout at dir.
func (i *Installer) Install(ctx context.Context, environment, dir string) error {
	timeout := i.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var env []string
	if i.CAFile != "" {
		env = append(env, "SSL_CERT_FILE="+i.CAFile)
	}
	if i.CertFile != "" {
		env = append(env, "PUPPET_SSL_CLIENT_CERT="+i.CertFile)
	}
	if i.KeyFile != "" {
		env = append(env, "PUPPET_SSL_CLIENT_KEY="+i.KeyFile)
	}

	cmd := []string{i.Path, "install"}
	i.logger.Info("installing puppet modules", "environment", environment, "path", dir)
	i.logger.Debug("running command", "command", cmdutil.FormatCommand(cmd), "dir", dir)

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: dir, Timeout: timeout, Env: env}, cmd)
	if err != nil {
		return &InstallError{Environment: environment, Output: string(result.Output), Err: err}
	}

	i.logger.Debug("puppet modules installed", "environment", environment, "duration", result.Duration)
	return nil
}
