package changeset

// Kind classifies how a path differs between the upstream tree and the
// installed tree.
type Kind int

const (
	KindNew Kind = iota
	KindChanged
	KindDeleted
)

// String returns the human-readable name of the kind
func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindChanged:
		return "changed"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Record is one classified change: a relative path and what happened to it
type Record struct {
	Kind Kind
	Path string
}

// ChangeSet holds the changes of one analysis run, split by kind. Each list
// preserves the order of the underlying itemized report, and a path appears
// in at most one of the three lists.
type ChangeSet struct {
	New     []string
	Changed []string
	Deleted []string
}

// Len returns the total number of changes across all three lists
func (cs *ChangeSet) Len() int {
	return len(cs.New) + len(cs.Changed) + len(cs.Deleted)
}

// Empty reports whether the change set contains no changes at all
func (cs *ChangeSet) Empty() bool {
	return cs.Len() == 0
}

// Candidates returns the flat ordered list New ++ Changed ++ Deleted that
// operator selections are indexed against (1-based).
func (cs *ChangeSet) Candidates() []Record {
	out := make([]Record, 0, cs.Len())
	for _, p := range cs.New {
		out = append(out, Record{Kind: KindNew, Path: p})
	}
	for _, p := range cs.Changed {
		out = append(out, Record{Kind: KindChanged, Path: p})
	}
	for _, p := range cs.Deleted {
		out = append(out, Record{Kind: KindDeleted, Path: p})
	}
	return out
}

// ProtectedConflict marks a path that would have changed but was suppressed
// by an exclude pattern: it shows up in the unfiltered diff pass but not in
// the filtered one.
type ProtectedConflict struct {
	Path   string
	Reason Kind
}
