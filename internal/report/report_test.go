package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/optolinkctl/internal/apply"
	"github.com/schaermu/optolinkctl/internal/changeset"
)

func TestGroupConflicts(t *testing.T) {
	conflicts := []changeset.ProtectedConflict{
		{Path: "settings_ini.py", Reason: changeset.KindChanged},
		{Path: "viessdata/today.csv", Reason: changeset.KindDeleted},
		{Path: "viessdata/old/last.csv", Reason: changeset.KindDeleted},
		{Path: "viessdata/config.json", Reason: changeset.KindChanged},
		{Path: "stray.log", Reason: changeset.KindNew},
	}
	patterns := []string{"settings_ini.py", "viessdata/"}

	groups, ungrouped := GroupConflicts(conflicts, patterns)

	require.Len(t, groups, 2)

	assert.Equal(t, "settings_ini.py", groups[0].Pattern)
	assert.Equal(t, 1, groups[0].Count)
	assert.Equal(t, []changeset.Kind{changeset.KindChanged}, groups[0].Reasons)

	assert.Equal(t, "viessdata/", groups[1].Pattern)
	assert.Equal(t, 3, groups[1].Count)
	assert.Equal(t, []changeset.Kind{changeset.KindDeleted, changeset.KindChanged}, groups[1].Reasons)

	require.Len(t, ungrouped, 1)
	assert.Equal(t, "stray.log", ungrouped[0].Path)
}

func TestGroupConflictsFirstMatchWins(t *testing.T) {
	conflicts := []changeset.ProtectedConflict{
		{Path: "data/inner/file.txt", Reason: changeset.KindChanged},
	}
	// Both patterns match; only the first configured one may claim the
	// conflict.
	patterns := []string{"data/", "data/inner/"}

	groups, ungrouped := GroupConflicts(conflicts, patterns)

	require.Len(t, groups, 1)
	assert.Equal(t, "data/", groups[0].Pattern)
	assert.Equal(t, 1, groups[0].Count)
	assert.Empty(t, ungrouped)
}

func TestGroupConflictsExactVsPrefix(t *testing.T) {
	conflicts := []changeset.ProtectedConflict{
		{Path: "cache", Reason: changeset.KindChanged},
		{Path: "cache/file", Reason: changeset.KindChanged},
		{Path: "cachefile", Reason: changeset.KindChanged},
	}

	groups, ungrouped := GroupConflicts(conflicts, []string{"cache/"})

	// "cache" and "cache/file" match the stripped pattern, "cachefile"
	// must not match as a bare string prefix.
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	require.Len(t, ungrouped, 1)
	assert.Equal(t, "cachefile", ungrouped[0].Path)
}

func TestGroupConflictsPartitionsInput(t *testing.T) {
	conflicts := []changeset.ProtectedConflict{
		{Path: "a", Reason: changeset.KindNew},
		{Path: "b/x", Reason: changeset.KindChanged},
		{Path: "c", Reason: changeset.KindDeleted},
		{Path: "b/y", Reason: changeset.KindNew},
	}

	groups, ungrouped := GroupConflicts(conflicts, []string{"a", "b/"})

	total := len(ungrouped)
	for _, g := range groups {
		total += g.Count
	}
	assert.Equal(t, len(conflicts), total)
}

func TestGroupConflictsEmpty(t *testing.T) {
	groups, ungrouped := GroupConflicts(nil, []string{"a"})
	assert.Empty(t, groups)
	assert.Empty(t, ungrouped)
}

func TestRenderCandidates(t *testing.T) {
	r := NewRenderer()

	cs := &changeset.ChangeSet{
		New:     []string{"new.py"},
		Changed: []string{"mod.py"},
		Deleted: []string{"old.py"},
	}

	out := r.RenderCandidates(cs)
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "new.py")
	assert.Contains(t, out, "[2]")
	assert.Contains(t, out, "mod.py")
	assert.Contains(t, out, "[3]")
	assert.Contains(t, out, "old.py")

	empty := r.RenderCandidates(&changeset.ChangeSet{})
	assert.Contains(t, empty, "up to date")
}

func TestRenderConflicts(t *testing.T) {
	r := NewRenderer()

	groups := []PatternGroup{
		{Pattern: "viessdata/", Count: 2, Reasons: []changeset.Kind{changeset.KindDeleted}},
	}
	ungrouped := []changeset.ProtectedConflict{
		{Path: "stray.log", Reason: changeset.KindNew},
	}

	out := r.RenderConflicts(groups, ungrouped)
	assert.Contains(t, out, "viessdata/")
	assert.Contains(t, out, "stray.log")
	assert.Contains(t, out, "no configured protect pattern")

	assert.Empty(t, r.RenderConflicts(nil, nil))
}

func TestRenderSummary(t *testing.T) {
	out := NewRenderer().RenderSummary(apply.Summary{Copied: 2, Deleted: 1, Skipped: 3})
	assert.Contains(t, out, "copied: 2")
	assert.Contains(t, out, "deleted: 1")
	assert.Contains(t, out, "skipped: 3")
}
