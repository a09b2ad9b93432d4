// Package install performs the initial installation: fetch the upstream
// release, place it into the installation directory and set up the systemd
// unit.
package install

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/schaermu/optolinkctl/internal/config"
	"github.com/schaermu/optolinkctl/internal/release"
	"github.com/schaermu/optolinkctl/internal/systemdsvc"
)

// unitDir is where managed unit files are written
const unitDir = "/etc/systemd/system"

// unitTemplate is the systemd unit installed for the splitter service
const unitTemplate = `[Unit]
Description=Optolink Splitter serial gateway
After=network-online.target

[Service]
Type=simple
WorkingDirectory={{ .InstallDir }}
ExecStart=/usr/bin/python3 {{ .InstallDir }}/optolinkvs2_switch.py
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// Installer performs the initial installation steps in sequence
type Installer struct {
	cfg     *config.Config
	fetcher release.Fetcher
	service systemdsvc.Service
	logger  *slog.Logger

	// overridable in tests
	unitDir string
}

// NewInstaller creates a new installer
func NewInstaller(cfg *config.Config, fetcher release.Fetcher, service systemdsvc.Service, logger *slog.Logger) *Installer {
	return &Installer{
		cfg:     cfg,
		fetcher: fetcher,
		service: service,
		logger:  logger,
		unitDir: unitDir,
	}
}

// Run executes the installation: directories, release download, tree copy,
// unit file, service activation. Re-running over an existing installation
// overwrites its files but leaves extra local files alone.
func (i *Installer) Run(ctx context.Context) error {
	i.logger.Info("installing",
		"repo", i.cfg.Release.Repo,
		"ref", i.cfg.Release.Ref,
		"install_dir", i.cfg.Paths.InstallDir)

	for _, dir := range []string{i.cfg.Paths.InstallDir, i.cfg.Paths.StateDir, i.cfg.Paths.BackupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	ref, err := i.fetcher.Fetch(ctx, i.cfg.StagingDir())
	if err != nil {
		return fmt.Errorf("failed to fetch release: %w", err)
	}
	i.logger.Info("release fetched", "ref", ref)

	if err := copyTree(i.cfg.StagingDir(), i.cfg.Paths.InstallDir); err != nil {
		return fmt.Errorf("failed to copy release into install directory: %w", err)
	}

	if !i.cfg.Service.ManageUnit {
		i.logger.Info("unit file management disabled, skipping service setup")
		return nil
	}

	if err := i.writeUnitFile(); err != nil {
		return err
	}

	if err := i.service.DaemonReload(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := i.service.EnableNow(ctx, i.cfg.Service.Unit); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	i.logger.Info("installation complete", "unit", i.cfg.Service.Unit)
	return nil
}

// writeUnitFile renders the unit template into the systemd unit directory
func (i *Installer) writeUnitFile() error {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ InstallDir string }{i.cfg.Paths.InstallDir}); err != nil {
		return fmt.Errorf("failed to render unit template: %w", err)
	}

	path := filepath.Join(i.unitDir, i.cfg.Service.Unit)
	i.logger.Info("writing unit file", "path", path)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	return nil
}

// copyTree copies every regular file under src into dst, creating
// directories as needed and preserving file modes.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = in.Close()
		}()

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	})
}
