// Package update orchestrates a full update run: snapshot the installation,
// fetch the upstream release, analyze the differences, let the operator pick
// the changes to apply, and apply exactly those while the service is stopped.
package update

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/schaermu/optolinkctl/internal/apply"
	"github.com/schaermu/optolinkctl/internal/backup"
	"github.com/schaermu/optolinkctl/internal/changeset"
	"github.com/schaermu/optolinkctl/internal/config"
	"github.com/schaermu/optolinkctl/internal/release"
	"github.com/schaermu/optolinkctl/internal/report"
	"github.com/schaermu/optolinkctl/internal/selection"
	"github.com/schaermu/optolinkctl/internal/systemdsvc"
)

// Engine orchestrates the update process
type Engine struct {
	cfg       *config.Config
	fetcher   release.Fetcher
	analyzer  *changeset.Analyzer
	applier   *apply.Applier
	backups   *backup.Manager
	service   systemdsvc.Service
	renderer  *report.Renderer
	logger    *slog.Logger
	dryRun    bool
	assumeYes bool
	in        io.Reader
	out       io.Writer
}

// NewEngine creates a new update engine
func NewEngine(cfg *config.Config, fetcher release.Fetcher, analyzer *changeset.Analyzer, service systemdsvc.Service, logger *slog.Logger, dryRun, assumeYes bool) *Engine {
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		analyzer:  analyzer,
		applier:   apply.NewApplier(logger),
		backups:   backup.NewManager(logger),
		service:   service,
		renderer:  report.NewRenderer(),
		logger:    logger,
		dryRun:    dryRun,
		assumeYes: assumeYes,
		in:        os.Stdin,
		out:       os.Stdout,
	}
}

// SetIO redirects the operator prompt and report output, used by tests
func (e *Engine) SetIO(in io.Reader, out io.Writer) {
	e.in = in
	e.out = out
}

// Run executes the complete update process
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting update",
		"repo", e.cfg.Release.Repo,
		"ref", e.cfg.Release.Ref,
		"dry_run", e.dryRun)

	// Ensure state directory exists
	if err := os.MkdirAll(e.cfg.Paths.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// One update at a time
	unlock, err := e.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	// Snapshot the installation before touching anything
	backupPath, err := e.backups.Create(e.cfg.Paths.InstallDir, e.cfg.Paths.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	e.logger.Info("backup created", "path", backupPath)

	removed, err := e.backups.Rotate(e.cfg.Paths.BackupDir, e.cfg.Update.KeepBackups)
	if err != nil {
		e.logger.Warn("backup rotation had issues", "error", err)
	} else if len(removed) > 0 {
		e.logger.Info("rotated old backups", "removed", len(removed))
	}

	// Fetch the upstream release into staging
	ref, err := e.fetcher.Fetch(ctx, e.cfg.StagingDir())
	if err != nil {
		return fmt.Errorf("failed to fetch release: %w", err)
	}
	e.logger.Info("release fetched", "ref", ref)

	// Analyze differences against the live tree
	cs, conflicts, err := e.analyzer.Analyze(ctx, e.cfg.StagingDir(), e.cfg.Paths.InstallDir, e.cfg.Update.Protect)
	if err != nil {
		return fmt.Errorf("failed to analyze changes: %w", err)
	}

	groups, ungrouped := report.GroupConflicts(conflicts, e.cfg.Update.Protect)
	if out := e.renderer.RenderConflicts(groups, ungrouped); out != "" {
		fmt.Fprintln(e.out, out)
	}

	fmt.Fprintln(e.out, e.renderer.RenderCandidates(cs))
	if cs.Empty() {
		return nil
	}

	if e.dryRun {
		e.logger.Info("dry-run complete, no changes applied")
		return nil
	}

	copyList, deleteList, err := e.selectChanges(cs)
	if err != nil {
		return err
	}
	if len(copyList) == 0 && len(deleteList) == 0 {
		fmt.Fprintln(e.out, "Nothing selected, no changes applied")
		return nil
	}

	return e.applySelected(ctx, copyList, deleteList)
}

// selectChanges prompts for a selection expression and splits the selected
// candidates into the copy and delete lists. A rejected expression aborts
// the whole update; no partial selection is ever applied.
func (e *Engine) selectChanges(cs *changeset.ChangeSet) ([]string, []string, error) {
	candidates := cs.Candidates()

	var input string
	if e.assumeYes {
		e.logger.Info("applying all changes (--yes)")
	} else {
		fmt.Fprintf(e.out, "Select changes to apply [a=all, n=none, e.g. 1,3-5]: ")

		line, err := bufio.NewReader(e.in).ReadString('\n')
		if err != nil && line == "" {
			return nil, nil, fmt.Errorf("failed to read selection: %w", err)
		}
		input = strings.TrimSpace(line)
	}

	indices, err := selection.Parse(input, len(candidates))
	if err != nil {
		return nil, nil, fmt.Errorf("selection rejected, no changes applied: %w", err)
	}

	var copyList, deleteList []string
	for _, idx := range indices {
		cand := candidates[idx-1]
		if cand.Kind == changeset.KindDeleted {
			deleteList = append(deleteList, cand.Path)
		} else {
			copyList = append(copyList, cand.Path)
		}
	}
	return copyList, deleteList, nil
}

// applySelected stops the service, applies the confirmed lists and starts
// the service again. The restart happens even when the apply failed halfway:
// the installation must not be left stopped.
func (e *Engine) applySelected(ctx context.Context, copyList, deleteList []string) error {
	unit := e.cfg.Service.Unit

	e.logger.Info("stopping service", "unit", unit)
	if err := e.service.Stop(ctx, unit); err != nil {
		return fmt.Errorf("refusing to modify a running installation: %w", err)
	}

	sum, applyErr := e.applier.Apply(e.cfg.StagingDir(), e.cfg.Paths.InstallDir, copyList, deleteList)

	e.logger.Info("starting service", "unit", unit)
	if err := e.service.Start(ctx, unit); err != nil {
		if applyErr != nil {
			return fmt.Errorf("apply failed (%v) and service restart failed: %w", applyErr, err)
		}
		return fmt.Errorf("update applied but service restart failed: %w", err)
	}

	if applyErr != nil {
		return fmt.Errorf("failed to apply changes: %w", applyErr)
	}

	fmt.Fprintln(e.out, e.renderer.RenderSummary(sum))
	return nil
}

// acquireLock takes the advisory update lock via an O_EXCL pid file
func (e *Engine) acquireLock() (func(), error) {
	path := e.cfg.LockFilePath()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another update appears to be running (lock file %s exists)", path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	_ = f.Close()

	return func() {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove lock file", "path", path, "error", err)
		}
	}, nil
}
