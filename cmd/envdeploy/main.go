package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"envdeploy/internal/config"
	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var (
	configFile string
	logFile    string
	noop       bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "envdeploy",
	Short: "Deploy puppet environments from a central git repository",
	Long: `Envdeploy keeps the puppet environments on this host in sync with the
branches of a central git repository.

Each branch becomes one environment, published as a symlink to a versioned
checkout and republished atomically on update. Concurrent runs on the same
host are serialized with filesystem locks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", getEnvOrDefault("ENVDEPLOY_CONFIG_FILE", config.DefaultPath), "Path to configuration file")
	pf.StringVar(&logFile, "log", getEnvOrDefault("ENVDEPLOY_LOG_FILE", ""), "Path to a JSON log file (in addition to stderr)")
	pf.BoolVarP(&noop, "noop", "n", false, "Compute and report changes without applying them")
	pf.BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	// Configuration overrides: explicit flag > config file > built-in default
	pf.String("git-url", "", "Master repository URL (overrides config file)")
	pf.String("environment-dir", "", "Environment root directory (overrides config file)")
	pf.String("master-repo-name", "", "Master repository directory name (overrides config file)")
	pf.String("blacklist", "", "Environment name exclusion pattern (overrides config file)")
	pf.String("librarian-puppet-path", "", "Path to librarian-puppet (overrides config file)")
	pf.String("puppet-server", "", "Puppet server to notify after updates (overrides config file)")
	pf.String("puppet-cert-file", "", "TLS client certificate (overrides config file)")
	pf.String("puppet-key-file", "", "TLS client key (overrides config file)")
	pf.String("puppet-ca-file", "", "TLS CA bundle (overrides config file)")
	pf.Bool("flush-environment-cache", false, "Flush the puppet server environment cache after updates (overrides config file)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateAllCmd)
	rootCmd.AddCommand(revisionCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// setupLogging configures slog with a JSON handler on stderr, optionally
// teeing to a log file. Returns the logger and a close function for the
// file handle.
func setupLogging() (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closer := func() {}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		w = io.MultiWriter(os.Stderr, file)
		closer = func() { _ = file.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// loadConfig loads the configuration file and applies any override flags
// that were explicitly set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	pf := rootCmd.PersistentFlags()
	if pf.Changed("git-url") {
		cfg.GitURL, _ = pf.GetString("git-url")
	}
	if pf.Changed("environment-dir") {
		cfg.EnvironmentDir, _ = pf.GetString("environment-dir")
	}
	if pf.Changed("master-repo-name") {
		cfg.MasterRepoName, _ = pf.GetString("master-repo-name")
	}
	if pf.Changed("blacklist") {
		cfg.Blacklist, _ = pf.GetString("blacklist")
	}
	if pf.Changed("librarian-puppet-path") {
		cfg.LibrarianPuppetPath, _ = pf.GetString("librarian-puppet-path")
	}
	if pf.Changed("puppet-server") {
		cfg.PuppetServer, _ = pf.GetString("puppet-server")
	}
	if pf.Changed("puppet-cert-file") {
		cfg.PuppetCertFile, _ = pf.GetString("puppet-cert-file")
	}
	if pf.Changed("puppet-key-file") {
		cfg.PuppetKeyFile, _ = pf.GetString("puppet-key-file")
	}
	if pf.Changed("puppet-ca-file") {
		cfg.PuppetCAFile, _ = pf.GetString("puppet-ca-file")
	}
	if pf.Changed("flush-environment-cache") {
		cfg.FlushEnvironmentCache, _ = pf.GetBool("flush-environment-cache")
	}

	return cfg, nil
}

// runManaged builds a manager and runs fn with it. Any error propagating
// out of fn triggers an unconditional lock release before it reaches the
// dispatcher, so no held lock survives an unhandled failure. Configuration
// errors surface before the manager (and therefore any lock) exists.
func runManaged(cmd *cobra.Command, fn func(ctx context.Context, m *environment.Manager) error) error {
	logger, closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := environment.NewManager(cfg, logger, noop)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(cmd.Context(), m); err != nil {
		m.ReleaseLocks()
		return err
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
