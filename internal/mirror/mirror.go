package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Differ enumerates the differences between two directory trees without
// modifying either of them.
type Differ interface {
	// DryRun returns the raw itemized change lines for syncing sourceDir
	// onto targetDir, honoring the given exclude patterns.
	DryRun(ctx context.Context, sourceDir, targetDir string, excludes []string) ([]string, error)
}

// ShellDiffer implements Differ by shelling out to rsync in dry-run mode
type ShellDiffer struct {
	binary string
	logger *slog.Logger
}

// NewShellDiffer creates a differ backed by the rsync command
func NewShellDiffer(logger *slog.Logger) *ShellDiffer {
	return &ShellDiffer{
		binary: "rsync",
		logger: logger,
	}
}

// DryRun invokes rsync with --dry-run --itemize-changes and returns one raw
// line per affected entry. Checksum-based change detection is used so that
// identical trees always produce an empty report regardless of timestamps.
func (d *ShellDiffer) DryRun(ctx context.Context, sourceDir, targetDir string, excludes []string) ([]string, error) {
	args := []string{
		"--archive",
		"--delete",
		"--checksum",
		"--dry-run",
		"--itemize-changes",
		"--out-format=%i %n",
	}

	for _, pattern := range excludes {
		args = append(args, "--exclude="+pattern)
	}

	// A trailing slash makes rsync compare the contents of sourceDir
	// rather than the directory itself.
	source := sourceDir
	if !strings.HasSuffix(source, "/") {
		source += "/"
	}
	args = append(args, source, targetDir)

	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// rsync missing or not executable is fatal, never "no changes"
			return nil, fmt.Errorf("failed to run %s: %w", d.binary, err)
		}

		switch code := exitErr.ExitCode(); {
		case code == 23 || code == 24:
			// Partial transfer / vanished source files. The itemized
			// report is still valid for the entries rsync could see.
			d.logger.Warn("rsync dry-run reported a partial transfer, using its output anyway",
				"exit_code", code,
				"stderr", strings.TrimSpace(stderr.String()))
		case strings.TrimSpace(stdout.String()) == "":
			// Upstream behavior: a failed dry-run with an empty report is
			// treated as "up to date" rather than as an error. Surface it
			// loudly so a broken tool does not masquerade as no changes.
			d.logger.Warn("rsync dry-run exited non-zero with empty output, treating as no changes",
				"exit_code", code,
				"stderr", strings.TrimSpace(stderr.String()))
			return nil, nil
		default:
			return nil, fmt.Errorf("rsync dry-run failed with exit code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
	}

	return splitLines(stdout.String()), nil
}

// splitLines splits raw command output into non-empty lines
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
