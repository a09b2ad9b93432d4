// Package report turns change sets, protected conflicts and apply summaries
// into human-readable terminal output.
package report

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/schaermu/optolinkctl/internal/apply"
	"github.com/schaermu/optolinkctl/internal/changeset"
)

// PatternGroup aggregates the protected conflicts attributed to one
// configured exclude pattern.
type PatternGroup struct {
	Pattern string
	Count   int
	Reasons []changeset.Kind // distinct, in first-seen order
}

// GroupConflicts attributes each conflict to the first configured pattern
// that matches its path, either exactly or as a directory prefix (a trailing
// slash on the pattern is ignored). Conflicts matching no pattern are
// returned separately: they signal that the configured excludes and the
// mirror tool's own exclude semantics have diverged.
func GroupConflicts(conflicts []changeset.ProtectedConflict, patterns []string) ([]PatternGroup, []changeset.ProtectedConflict) {
	groups := make([]PatternGroup, 0, len(patterns))
	index := make(map[string]int, len(patterns))

	var ungrouped []changeset.ProtectedConflict

	for _, conflict := range conflicts {
		matched := false
		for _, pattern := range patterns {
			if !patternMatches(pattern, conflict.Path) {
				continue
			}

			i, ok := index[pattern]
			if !ok {
				groups = append(groups, PatternGroup{Pattern: pattern})
				i = len(groups) - 1
				index[pattern] = i
			}
			groups[i].Count++
			groups[i].Reasons = appendDistinct(groups[i].Reasons, conflict.Reason)

			matched = true
			break
		}
		if !matched {
			ungrouped = append(ungrouped, conflict)
		}
	}

	return groups, ungrouped
}

// patternMatches reports whether path equals the pattern (trailing separator
// stripped) or lives underneath it.
func patternMatches(pattern, path string) bool {
	stripped := strings.TrimSuffix(pattern, "/")
	if stripped == "" {
		return false
	}
	return path == stripped || strings.HasPrefix(path, stripped+"/")
}

func appendDistinct(kinds []changeset.Kind, kind changeset.Kind) []changeset.Kind {
	for _, k := range kinds {
		if k == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

// Renderer formats analysis results for the terminal
type Renderer struct{}

// NewRenderer creates a new terminal renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderCandidates renders the numbered candidate list the operator selects
// from: new files first, then changed, then deleted.
func (r *Renderer) RenderCandidates(cs *changeset.ChangeSet) string {
	if cs.Empty() {
		return pterm.FgGray.Sprint("No changes found, installation is up to date")
	}

	var b strings.Builder
	b.WriteString(pterm.DefaultSection.Sprint("Pending changes"))

	for i, cand := range cs.Candidates() {
		var label string
		switch cand.Kind {
		case changeset.KindNew:
			label = pterm.FgGreen.Sprint("new    ")
		case changeset.KindChanged:
			label = pterm.FgYellow.Sprint("changed")
		case changeset.KindDeleted:
			label = pterm.FgRed.Sprint("deleted")
		}
		fmt.Fprintf(&b, "  [%d] %s  %s\n", i+1, label, cand.Path)
	}

	return b.String()
}

// RenderConflicts renders the protected-conflict section. Grouped conflicts
// are shown per pattern with their distinct reasons; ungrouped ones are
// flagged as an exclude-configuration anomaly.
func (r *Renderer) RenderConflicts(groups []PatternGroup, ungrouped []changeset.ProtectedConflict) string {
	if len(groups) == 0 && len(ungrouped) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(pterm.DefaultSection.Sprint("Protected files with upstream changes"))

	for _, g := range groups {
		reasons := make([]string, 0, len(g.Reasons))
		for _, reason := range g.Reasons {
			reasons = append(reasons, reason.String())
		}
		fmt.Fprintf(&b, "  %s  %s\n",
			pterm.FgCyan.Sprint(g.Pattern),
			pterm.FgGray.Sprintf("%d file(s): %s", g.Count, strings.Join(reasons, ", ")))
	}

	for _, c := range ungrouped {
		fmt.Fprintf(&b, "  %s  %s\n",
			pterm.FgYellow.Sprintf("%s (%s)", c.Path, c.Reason),
			pterm.FgGray.Sprint("matches no configured protect pattern"))
	}

	return b.String()
}

// RenderSummary renders the outcome counts of an apply run
func (r *Renderer) RenderSummary(sum apply.Summary) string {
	return fmt.Sprintf("%s copied: %d, deleted: %d, skipped: %d",
		pterm.FgGreen.Sprint("Update applied."), sum.Copied, sum.Deleted, sum.Skipped)
}
