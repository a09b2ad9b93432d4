// Package backup snapshots the installation tree before an update and keeps
// the number of retained snapshots bounded.
package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// prefix and timestamp layout of backup directory names,
// e.g. backup-20260831-154500
const (
	namePrefix = "backup-"
	nameLayout = "20060102-150405"
)

// Manager creates and rotates installation backups
type Manager struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new backup manager
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		now:    time.Now,
	}
}

// Create copies the installation tree at installDir into a new timestamped
// directory under backupDir and returns its path. Hidden files and
// directories (names starting with ".") are not part of the snapshot.
func (m *Manager) Create(installDir, backupDir string) (string, error) {
	if _, err := os.Stat(installDir); err != nil {
		return "", fmt.Errorf("installation directory not accessible: %w", err)
	}

	dest := filepath.Join(backupDir, namePrefix+m.now().Format(nameLayout))
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	m.logger.Info("creating backup", "source", installDir, "dest", dest)

	err := filepath.Walk(installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories (e.g. .git, .gitignore)
		if path != installDir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(installDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info)
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy installation tree: %w", err)
	}

	return dest, nil
}

// Rotate deletes the oldest backups under backupDir beyond the given
// retention count and returns the names of the removed directories. The
// timestamped naming makes lexical order chronological.
func (m *Manager) Rotate(backupDir string, keep int) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), namePrefix) {
			backups = append(backups, entry.Name())
		}
	}
	sort.Strings(backups)

	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	for _, name := range backups[:len(backups)-keep] {
		m.logger.Info("removing old backup", "name", name)
		if err := os.RemoveAll(filepath.Join(backupDir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove old backup %s: %w", name, err)
		}
		removed = append(removed, name)
	}

	return removed, nil
}

// copyFile copies a regular file, preserving mode and modification time
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
