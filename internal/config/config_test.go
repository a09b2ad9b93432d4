package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
release:
  repo: "philippoo66/optolink-splitter"
  ref: "main"

paths:
  install_dir: "/opt/optolink-splitter"
  state_dir: "/var/lib/optolinkctl"
  backup_dir: "/var/backups/optolink-splitter"

update:
  protect:
    - "settings_ini.py"
    - "viessdata/"
  keep_backups: 3

service:
  unit: "optolink-splitter.service"
  manage_unit: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "philippoo66/optolink-splitter", cfg.Release.Repo)
	assert.Equal(t, "main", cfg.Release.Ref)
	assert.Equal(t, "/opt/optolink-splitter", cfg.Paths.InstallDir)
	assert.Equal(t, []string{"settings_ini.py", "viessdata/"}, cfg.Update.Protect)
	assert.Equal(t, 3, cfg.Update.KeepBackups)
	assert.True(t, cfg.Service.ManageUnit)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
release:
  repo: "philippoo66/optolink-splitter"
paths:
  install_dir: "/opt/optolink-splitter"
  state_dir: "/var/lib/optolinkctl"
  backup_dir: "/var/backups/optolink-splitter"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Release.Ref)
	assert.Equal(t, 5, cfg.Update.KeepBackups)
	assert.Equal(t, "optolink-splitter.service", cfg.Service.Unit)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("OPTO_BASE", "/srv/opto")

	path := writeConfig(t, `
release:
  repo: "philippoo66/optolink-splitter"
paths:
  install_dir: "$OPTO_BASE/app"
  state_dir: "$OPTO_BASE/state"
  backup_dir: "$OPTO_BASE/backups"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/opto/app", cfg.Paths.InstallDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Release: ReleaseConfig{Repo: "owner/name", Ref: "main"},
			Paths: PathsConfig{
				InstallDir: "/opt/app",
				StateDir:   "/var/lib/app",
				BackupDir:  "/var/backups/app",
			},
			Update:  UpdateConfig{KeepBackups: 5},
			Service: ServiceConfig{Unit: "app.service"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing repo",
			mutate:  func(c *Config) { c.Release.Repo = "" },
			wantErr: "release.repo is required",
		},
		{
			name:    "malformed repo",
			mutate:  func(c *Config) { c.Release.Repo = "justaname" },
			wantErr: "owner/name",
		},
		{
			name:    "relative install dir",
			mutate:  func(c *Config) { c.Paths.InstallDir = "opt/app" },
			wantErr: "absolute",
		},
		{
			name:    "missing state dir",
			mutate:  func(c *Config) { c.Paths.StateDir = "" },
			wantErr: "state_dir is required",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Update.KeepBackups = -1 },
			wantErr: "keep_backups",
		},
		{
			name:    "empty protect pattern",
			mutate:  func(c *Config) { c.Update.Protect = []string{"/"} },
			wantErr: "empty pattern",
		},
		{
			name:    "non-service unit",
			mutate:  func(c *Config) { c.Service.Unit = "app.timer" },
			wantErr: ".service",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{
		Release: ReleaseConfig{Repo: "philippoo66/optolink-splitter", Ref: "v1.2"},
		Paths:   PathsConfig{StateDir: "/var/lib/optolinkctl"},
	}

	assert.Equal(t, "/var/lib/optolinkctl/staging", cfg.StagingDir())
	assert.Equal(t, "/var/lib/optolinkctl/update.lock", cfg.LockFilePath())
	assert.Equal(t, "https://codeload.github.com/philippoo66/optolink-splitter/tar.gz/v1.2", cfg.TarballURL())
	assert.Equal(t, "optolink-splitter", cfg.RepoName())

	cfg.Release.TarballURL = "http://mirror.local/optolink-splitter.tar.gz"
	assert.Equal(t, "http://mirror.local/optolink-splitter.tar.gz", cfg.TarballURL())
}
