package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete optolinkctl configuration
type Config struct {
	Release ReleaseConfig `yaml:"release"`
	Paths   PathsConfig   `yaml:"paths"`
	Update  UpdateConfig  `yaml:"update"`
	Service ServiceConfig `yaml:"service"`
}

// ReleaseConfig configures the upstream GitHub source
type ReleaseConfig struct {
	Repo string `yaml:"repo"` // "owner/name"
	Ref  string `yaml:"ref"`

	// TarballURL overrides the GitHub download URL, for mirrors or
	// air-gapped setups. Leave empty to download from github.com.
	TarballURL string `yaml:"tarball_url"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	InstallDir string `yaml:"install_dir"`
	StateDir   string `yaml:"state_dir"`
	BackupDir  string `yaml:"backup_dir"`
}

// UpdateConfig configures update behavior
type UpdateConfig struct {
	// Protect lists paths (exact or directory prefix with trailing slash)
	// that updates must never touch, e.g. the local settings file.
	Protect     []string `yaml:"protect"`
	KeepBackups int      `yaml:"keep_backups"`
}

// ServiceConfig configures the managed systemd unit
type ServiceConfig struct {
	Unit       string `yaml:"unit"`
	ManageUnit bool   `yaml:"manage_unit"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Release.Repo = os.ExpandEnv(c.Release.Repo)
	c.Release.Ref = os.ExpandEnv(c.Release.Ref)
	c.Release.TarballURL = os.ExpandEnv(c.Release.TarballURL)
	c.Paths.InstallDir = os.ExpandEnv(c.Paths.InstallDir)
	c.Paths.StateDir = os.ExpandEnv(c.Paths.StateDir)
	c.Paths.BackupDir = os.ExpandEnv(c.Paths.BackupDir)
	c.Service.Unit = os.ExpandEnv(c.Service.Unit)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Release.Ref == "" {
		c.Release.Ref = "main"
	}
	if c.Update.KeepBackups == 0 {
		c.Update.KeepBackups = 5
	}
	if c.Service.Unit == "" {
		c.Service.Unit = "optolink-splitter.service"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Release.Repo == "" {
		return fmt.Errorf("release.repo is required")
	}
	if parts := strings.Split(c.Release.Repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("release.repo must be of the form owner/name: %s", c.Release.Repo)
	}

	if c.Paths.InstallDir == "" {
		return fmt.Errorf("paths.install_dir is required")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir is required")
	}
	if c.Paths.BackupDir == "" {
		return fmt.Errorf("paths.backup_dir is required")
	}

	// Ensure paths are absolute
	if !filepath.IsAbs(c.Paths.InstallDir) {
		return fmt.Errorf("paths.install_dir must be an absolute path: %s", c.Paths.InstallDir)
	}
	if !filepath.IsAbs(c.Paths.StateDir) {
		return fmt.Errorf("paths.state_dir must be an absolute path: %s", c.Paths.StateDir)
	}
	if !filepath.IsAbs(c.Paths.BackupDir) {
		return fmt.Errorf("paths.backup_dir must be an absolute path: %s", c.Paths.BackupDir)
	}

	if c.Update.KeepBackups < 0 {
		return fmt.Errorf("update.keep_backups must not be negative: %d", c.Update.KeepBackups)
	}

	for _, pattern := range c.Update.Protect {
		if strings.TrimSuffix(pattern, "/") == "" {
			return fmt.Errorf("update.protect contains an empty pattern")
		}
		if filepath.IsAbs(pattern) {
			return fmt.Errorf("update.protect patterns must be relative: %s", pattern)
		}
	}

	if !strings.HasSuffix(c.Service.Unit, ".service") {
		return fmt.Errorf("service.unit must name a .service unit: %s", c.Service.Unit)
	}

	return nil
}

// StagingDir returns the path the upstream release is extracted into
func (c *Config) StagingDir() string {
	return filepath.Join(c.Paths.StateDir, "staging")
}

// LockFilePath returns the path of the advisory update lock file
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "update.lock")
}

// TarballURL returns the download URL for the configured release ref,
// honoring the configured override.
func (c *Config) TarballURL() string {
	if c.Release.TarballURL != "" {
		return c.Release.TarballURL
	}
	return fmt.Sprintf("https://codeload.github.com/%s/tar.gz/%s", c.Release.Repo, c.Release.Ref)
}

// RepoName returns the bare repository name without the owner
func (c *Config) RepoName() string {
	parts := strings.Split(c.Release.Repo, "/")
	return parts[len(parts)-1]
}
