package diffindex

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Side selects which column of the diff a line number refers to.
type Side int

const (
	// OldSide addresses line numbers in the base revision.
	OldSide Side = iota
	// NewSide addresses line numbers in the head revision.
	NewSide
)

// DiffAnchor returns the base deep link for a file in the PR diff view.
// GitHub anchors diff files by the SHA-256 of the path.
func DiffAnchor(repoURL string, prNumber int, path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%s/pull/%d/files#diff-%x", strings.TrimRight(repoURL, "/"), prNumber, h)
}

// BlobAnchor returns a link to a file at a specific revision with optional
// line highlighting.
func BlobAnchor(repoURL, sha, path string, start, end int) string {
	base := fmt.Sprintf("%s/blob/%s/%s", strings.TrimRight(repoURL, "/"), sha, path)
	switch {
	case start > 0 && end > start:
		return fmt.Sprintf("%s#L%d-L%d", base, start, end)
	case start > 0:
		return fmt.Sprintf("%s#L%d", base, start)
	default:
		return base
	}
}

// Resolve produces a line-addressed deep link into the PR diff view.
// It fails when the path is not indexed or the line is not covered by any
// parsed hunk on the requested side, so callers never emit dangling anchors.
func (ix *Index) Resolve(repoURL string, prNumber int, path string, line int, side Side) (string, bool) {
	if !ix.LineInDiff(path, line, side) {
		return "", false
	}
	col := "R"
	if side == OldSide {
		col = "L"
	}
	return fmt.Sprintf("%s%s%d", DiffAnchor(repoURL, prNumber, path), col, line), true
}

// LineInDiff reports whether a line number is covered by a parsed hunk.
// Binary sentinel hunks cover no lines.
func (ix *Index) LineInDiff(path string, line int, side Side) bool {
	fi := ix.files[path]
	if fi == nil || line <= 0 {
		return false
	}
	for _, h := range fi.Hunks {
		if h.Binary {
			continue
		}
		start, count := h.NewStart, h.NewLines
		if side == OldSide {
			start, count = h.OldStart, h.OldLines
		}
		if line >= start && line < start+count {
			return true
		}
	}
	return false
}
