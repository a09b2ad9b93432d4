package changeset

import "strings"

// Layout of an rsync --itemize-changes line: one update-type character, one
// entry-type character, nine attribute characters, a single space, then the
// relative path. Deletions use the literal "*deleting" marker instead.
const (
	flagWidth       = 11
	attrStart       = 2
	deletionMarker  = "*deleting"
	newFileAttrMask = "+++++++++"
)

// Classify parses one itemized change line into a Record. The second return
// value is false for lines that carry no per-file change: directory entries,
// unrecognized update types, and malformed or empty lines.
func Classify(line string) (Record, bool) {
	if strings.HasPrefix(line, deletionMarker) {
		path := strings.TrimSpace(line[len(deletionMarker):])
		if path == "" || strings.HasSuffix(path, "/") {
			return Record{}, false
		}
		return Record{Kind: KindDeleted, Path: path}, true
	}

	// Need the full flag field, the separating space and at least one
	// path character.
	if len(line) < flagWidth+2 || line[flagWidth] != ' ' {
		return Record{}, false
	}

	switch line[0] {
	case '>', '<', '.', 'c', 'h':
		// Transfer or attribute-only change, handled below.
	default:
		return Record{}, false
	}

	// Directories are never individual change entries.
	if line[1] == 'd' {
		return Record{}, false
	}

	path := line[flagWidth+1:]
	if path == "" || strings.HasSuffix(path, "/") {
		return Record{}, false
	}

	// Nine '+' attribute characters mean the destination has no version of
	// the file at all; everything else is a change to an existing file.
	if line[attrStart:flagWidth] == newFileAttrMask {
		return Record{Kind: KindNew, Path: path}, true
	}
	return Record{Kind: KindChanged, Path: path}, true
}
