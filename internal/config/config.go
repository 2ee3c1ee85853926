package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration file is looked for unless
// overridden with --config.
const DefaultPath = "/etc/envdeploy/config.yaml"

// Built-in defaults, overridable by the config file, which in turn is
// overridable by command line flags.
const (
	DefaultEnvironmentDir      = "/data/puppet/environments"
	DefaultMasterRepoName      = ".puppet.git"
	DefaultBlacklist           = `^live_.*$`
	DefaultLibrarianPuppetPath = "/opt/puppetlabs/puppet/bin/librarian-puppet"
)

// Config holds the resolved set of options for the environment manager.
type Config struct {
	GitURL                string `yaml:"git_url"`
	EnvironmentDir        string `yaml:"environment_dir"`
	MasterRepoName        string `yaml:"master_repo_name"`
	Blacklist             string `yaml:"blacklist"`
	LibrarianPuppetPath   string `yaml:"librarian_puppet_path"`
	PuppetCertFile        string `yaml:"puppet_cert_file"`
	PuppetKeyFile         string `yaml:"puppet_key_file"`
	PuppetCAFile          string `yaml:"puppet_ca_file"`
	PuppetServer          string `yaml:"puppet_server"`
	FlushEnvironmentCache bool   `yaml:"flush_environment_cache"`
}

// ValidationError describes one or more invalid configuration options.
// It is surfaced before any lock is taken or repository touched.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration:\n%s", strings.Join(e.Problems, "\n"))
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		EnvironmentDir:      DefaultEnvironmentDir,
		MasterRepoName:      DefaultMasterRepoName,
		Blacklist:           DefaultBlacklist,
		LibrarianPuppetPath: DefaultLibrarianPuppetPath,
	}
}

// Load reads the configuration file at path and merges it over the built-in
// defaults. A missing file is not an error: the defaults are returned so
// that flags alone can configure a run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, nil
}

// Validate performs basic error checking on the resolved options.
// Returns a *ValidationError listing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.GitURL == "" {
		problems = append(problems, "  - git_url must be specified")
	}

	if c.EnvironmentDir == "" {
		problems = append(problems, "  - environment_dir must be specified")
	} else if info, err := os.Stat(c.EnvironmentDir); err != nil {
		problems = append(problems, fmt.Sprintf("  - environment_dir %s not found or not readable", c.EnvironmentDir))
	} else if !info.IsDir() {
		problems = append(problems, fmt.Sprintf("  - environment_dir %s is not a directory", c.EnvironmentDir))
	}

	if c.MasterRepoName == "" {
		problems = append(problems, "  - master_repo_name must be specified")
	} else if strings.ContainsRune(c.MasterRepoName, os.PathSeparator) {
		problems = append(problems, fmt.Sprintf("  - master_repo_name %q must not contain a path separator", c.MasterRepoName))
	}

	if _, err := regexp.Compile(c.Blacklist); err != nil {
		problems = append(problems, fmt.Sprintf("  - blacklist pattern %q does not compile: %v", c.Blacklist, err))
	}

	if c.LibrarianPuppetPath == "" {
		problems = append(problems, "  - librarian_puppet_path must be specified")
	}

	if c.FlushEnvironmentCache {
		if c.PuppetServer == "" {
			problems = append(problems, "  - puppet_server is required when flush_environment_cache is enabled")
		}
		for _, f := range []struct{ key, value string }{
			{"puppet_cert_file", c.PuppetCertFile},
			{"puppet_key_file", c.PuppetKeyFile},
			{"puppet_ca_file", c.PuppetCAFile},
		} {
			if f.value == "" {
				problems = append(problems, fmt.Sprintf("  - %s is required when flush_environment_cache is enabled", f.key))
			} else if _, err := os.Stat(f.value); err != nil {
				problems = append(problems, fmt.Sprintf("  - %s %s not found or not readable", f.key, f.value))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// MasterRepoPath returns the on-disk location of the master repository.
func (c *Config) MasterRepoPath() string {
	return filepath.Join(c.EnvironmentDir, c.MasterRepoName)
}

// BlacklistPattern compiles the environment name exclusion pattern.
func (c *Config) BlacklistPattern() (*regexp.Regexp, error) {
	pattern, err := regexp.Compile(c.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("blacklist pattern does not compile: %w", err)
	}
	return pattern, nil
}

// AsYAML renders the resolved configuration as a YAML document, for the
// config command.
func (c *Config) AsYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return "---\n" + string(out), nil
}
