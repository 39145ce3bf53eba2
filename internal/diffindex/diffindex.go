package diffindex

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Patch is one file's raw unified diff as delivered by the PR API.
// The patch body contains hunks only; headers are synthesized before parsing.
type Patch struct {
	Path    string
	OldPath string
	Status  string // added, modified, removed, renamed
	Body    string
}

// Hunk is one contiguous change region in a file's diff.
type Hunk struct {
	Path     string
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Added    int
	Deleted  int
	Binary   bool
}

// FileIndex holds the parsed hunks and flags for one file.
type FileIndex struct {
	Path        string
	OldPath     string
	Status      string
	Hunks       []Hunk
	Binary      bool
	Truncated   bool
	Unparseable bool
}

// Index is the addressable view of a PR's diffs. Files keep manifest order.
type Index struct {
	files map[string]*FileIndex
	order []string
}

// Build parses each file's patch independently. A malformed patch degrades to
// an unparseable entry for that file only; other files are unaffected.
// Patches larger than maxBytes are cut at a hunk boundary and flagged.
func Build(patches []Patch, maxBytes int) *Index {
	ix := &Index{files: make(map[string]*FileIndex)}
	for _, p := range patches {
		fi := &FileIndex{Path: p.Path, OldPath: p.OldPath, Status: p.Status}
		ix.files[p.Path] = fi
		ix.order = append(ix.order, p.Path)

		body := p.Body
		if body == "" {
			// Binary and very large files arrive without a patch body.
			fi.Binary = true
			fi.Hunks = []Hunk{{Path: p.Path, Binary: true}}
			continue
		}
		if maxBytes > 0 && len(body) > maxBytes {
			body = truncateAtHunk(body, maxBytes)
			fi.Truncated = true
		}

		parsed, err := parsePatch(p, body)
		if err != nil {
			fi.Unparseable = true
			fi.Hunks = nil
			continue
		}
		fi.Hunks = parsed
	}
	return ix
}

// parsePatch synthesizes git headers around the raw hunk body so that
// go-gitdiff accepts it, then converts fragments into Hunk records.
func parsePatch(p Patch, body string) ([]Hunk, error) {
	oldPath := p.OldPath
	if oldPath == "" {
		oldPath = p.Path
	}

	var hdr strings.Builder
	fmt.Fprintf(&hdr, "diff --git a/%s b/%s\n", oldPath, p.Path)
	switch p.Status {
	case "added":
		hdr.WriteString("--- /dev/null\n")
		fmt.Fprintf(&hdr, "+++ b/%s\n", p.Path)
	case "removed":
		fmt.Fprintf(&hdr, "--- a/%s\n", oldPath)
		hdr.WriteString("+++ /dev/null\n")
	default:
		fmt.Fprintf(&hdr, "--- a/%s\n", oldPath)
		fmt.Fprintf(&hdr, "+++ b/%s\n", p.Path)
	}

	text := hdr.String() + body
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	files, _, err := gitdiff.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parsing patch for %s: %w", p.Path, err)
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("parsing patch for %s: expected 1 file, got %d", p.Path, len(files))
	}

	var hunks []Hunk
	for _, frag := range files[0].TextFragments {
		h := Hunk{
			Path:     p.Path,
			OldStart: int(frag.OldPosition),
			OldLines: int(frag.OldLines),
			NewStart: int(frag.NewPosition),
			NewLines: int(frag.NewLines),
		}
		for _, line := range frag.Lines {
			switch line.Op {
			case gitdiff.OpAdd:
				h.Added++
			case gitdiff.OpDelete:
				h.Deleted++
			}
		}
		hunks = append(hunks, h)
	}
	return hunks, nil
}

// truncateAtHunk cuts raw hunk text at the last hunk header that starts
// within the byte budget, so the remaining hunks still parse and link.
func truncateAtHunk(body string, maxBytes int) string {
	if maxBytes >= len(body) {
		return body
	}
	cut := strings.LastIndex(body[:maxBytes], "\n@@ ")
	if cut <= 0 {
		// Single oversized hunk: keep whole lines up to the budget. The tail
		// of the hunk is lost but line numbers at the top remain valid.
		cut = strings.LastIndexByte(body[:maxBytes], '\n')
		if cut <= 0 {
			return body[:maxBytes]
		}
	}
	return body[:cut]
}

// File returns the index entry for path, or nil if the path is unknown.
func (ix *Index) File(path string) *FileIndex {
	return ix.files[path]
}

// Contains reports whether path is part of the indexed manifest.
func (ix *Index) Contains(path string) bool {
	_, ok := ix.files[path]
	return ok
}

// Paths returns all indexed paths in manifest order.
func (ix *Index) Paths() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Hunks returns the parsed hunks for path.
func (ix *Index) Hunks(path string) []Hunk {
	if fi := ix.files[path]; fi != nil {
		return fi.Hunks
	}
	return nil
}
