// Package apply executes a confirmed set of per-file copy and delete
// operations against the live installation tree.
package apply

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Summary counts the outcome of one apply run
type Summary struct {
	Copied  int
	Deleted int
	Skipped int
}

// Applier copies and deletes individual files between two trees
type Applier struct {
	logger *slog.Logger
}

// NewApplier creates a new change applier
func NewApplier(logger *slog.Logger) *Applier {
	return &Applier{logger: logger}
}

// Apply copies every path in copyList from sourceDir into targetDir and then
// deletes every path in deleteList from targetDir. Missing source files are
// skipped (the change set was computed from a separate snapshot and the
// source tree may have moved on), and deleting an already-absent file is a
// no-op. Copies whose destination already has identical content count as
// nothing, which makes a repeated apply report zero work.
//
// The copy list is processed fully before the delete list. A hard I/O error
// aborts with a prefix of copyList applied and the remaining operations
// untouched; there is no rollback.
func (a *Applier) Apply(sourceDir, targetDir string, copyList, deleteList []string) (Summary, error) {
	var sum Summary

	for _, rel := range copyList {
		src := filepath.Join(sourceDir, rel)
		dst := filepath.Join(targetDir, rel)

		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			a.logger.Warn("source file missing, skipping", "path", rel)
			sum.Skipped++
			continue
		}

		same, err := sameContent(src, dst)
		if err != nil {
			return sum, fmt.Errorf("failed to compare %s: %w", rel, err)
		}
		if same {
			a.logger.Debug("destination already up to date", "path", rel)
			continue
		}

		a.logger.Info("copying file", "path", rel)
		if err := copyFile(src, dst, info); err != nil {
			return sum, fmt.Errorf("failed to copy %s: %w", rel, err)
		}
		sum.Copied++
	}

	for _, rel := range deleteList {
		dst := filepath.Join(targetDir, rel)

		info, err := os.Stat(dst)
		if err != nil || !info.Mode().IsRegular() {
			// Already absent, nothing to do.
			continue
		}

		a.logger.Info("deleting file", "path", rel)
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return sum, fmt.Errorf("failed to delete %s: %w", rel, err)
		}
		sum.Deleted++
	}

	return sum, nil
}

// copyFile copies src to dst with an atomic write, preserving the source
// file's mode and modification time.
func copyFile(src, dst string, srcInfo os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".optolinkctl-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Chtimes(tmpPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

// sameContent reports whether dst exists as a regular file with the same
// content hash as src.
func sameContent(src, dst string) (bool, error) {
	info, err := os.Stat(dst)
	if err != nil || !info.Mode().IsRegular() {
		return false, nil
	}

	srcHash, err := fileHash(src)
	if err != nil {
		return false, err
	}
	dstHash, err := fileHash(dst)
	if err != nil {
		return false, err
	}
	return srcHash == dstHash, nil
}

// fileHash computes the SHA256 hash of a file
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
