package changeset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/optolinkctl/internal/mirror"
)

// Analyzer computes the change set between an upstream tree and the
// installed tree, and detects changes that exclude patterns suppressed.
type Analyzer struct {
	differ mirror.Differ
	logger *slog.Logger
}

// NewAnalyzer creates a new change set analyzer
func NewAnalyzer(differ mirror.Differ, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		differ: differ,
		logger: logger,
	}
}

// Analyze runs the differ twice against the same tree pair: once without any
// excludes and once with the configured exclude patterns. The filtered pass
// yields the applicable change set; every classified line of the unfiltered
// pass that is not present verbatim in the filtered output was suppressed by
// an exclude pattern and is reported as a ProtectedConflict.
func (a *Analyzer) Analyze(ctx context.Context, sourceDir, targetDir string, excludes []string) (*ChangeSet, []ProtectedConflict, error) {
	unfiltered, err := a.differ.DryRun(ctx, sourceDir, targetDir, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("unfiltered diff pass failed: %w", err)
	}

	filtered, err := a.differ.DryRun(ctx, sourceDir, targetDir, excludes)
	if err != nil {
		return nil, nil, fmt.Errorf("filtered diff pass failed: %w", err)
	}

	cs := &ChangeSet{}
	seen := make(map[string]bool)
	for _, line := range filtered {
		rec, ok := Classify(line)
		if !ok {
			continue
		}
		// One pass cannot legitimately classify a path two ways; keep the
		// first occurrence so the three lists stay disjoint.
		if seen[rec.Path] {
			continue
		}
		seen[rec.Path] = true

		switch rec.Kind {
		case KindNew:
			cs.New = append(cs.New, rec.Path)
		case KindChanged:
			cs.Changed = append(cs.Changed, rec.Path)
		case KindDeleted:
			cs.Deleted = append(cs.Deleted, rec.Path)
		}
	}

	filteredLines := make(map[string]bool, len(filtered))
	for _, line := range filtered {
		filteredLines[line] = true
	}

	var conflicts []ProtectedConflict
	conflictSeen := make(map[string]bool)
	for _, line := range unfiltered {
		rec, ok := Classify(line)
		if !ok {
			continue
		}
		// Exact raw-line membership, not path membership: a line that
		// reclassified between passes still counts as suppressed.
		if filteredLines[line] || conflictSeen[rec.Path] {
			continue
		}
		conflictSeen[rec.Path] = true
		conflicts = append(conflicts, ProtectedConflict{Path: rec.Path, Reason: rec.Kind})
	}

	a.logger.Debug("change analysis complete",
		"new", len(cs.New),
		"changed", len(cs.Changed),
		"deleted", len(cs.Deleted),
		"protected", len(conflicts))

	return cs, conflicts, nil
}
