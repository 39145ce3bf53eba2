package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/roadmap/internal/diffindex"
	"github.com/dshills/roadmap/internal/providers"
)

// orderMarker is the literal line the model must emit to keep its own
// foundational-first section order instead of the risk-ascending default.
const orderMarker = "<!-- order: foundational-first -->"

var (
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	diffFragRe  = regexp.MustCompile(`#diff-([0-9a-f]{64})(?:([RL])(\d+))?$`)
	blobFragRe  = regexp.MustCompile(`#L(\d+)(?:-L(\d+))?$`)
	sectionHead = regexp.MustCompile(`^###\s+(.+?)\s*$`)
)

// synthesize is the final stage: one model invocation over the accumulated
// state, then deterministic cleanup of links and section order. Roadmap is
// set exactly once.
func (e *Engine) synthesize(ctx context.Context, s *ReviewState) error {
	req := providers.Request{
		System: synthesisSystemPrompt,
		User:   e.buildSynthesisUser(s),
	}
	resp, err := e.invokeModel(ctx, s, req)
	if err != nil {
		return err
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		repair := providers.Request{
			System: synthesisSystemPrompt,
			User:   schemaRepairPrompt(fmt.Errorf("empty roadmap"), resp.Content),
		}
		resp, err = e.invokeModel(ctx, s, repair)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(resp.Content)
		if out == "" {
			return &SchemaViolationError{Detail: "synthesis", Err: fmt.Errorf("model returned an empty roadmap twice")}
		}
	}

	out = e.sanitizeLinks(s, out)
	out = e.orderSections(s, out)
	s.Roadmap = out + "\n"
	return nil
}

// orderedComponents returns the topology's components sorted by ascending
// risk tier, ties broken by declaration order.
func orderedComponents(t Topology) []Component {
	out := make([]Component, len(t.Components))
	copy(out, t.Components)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Risk < out[j].Risk })
	return out
}

// sanitizeLinks rewrites every markdown link in the roadmap so it can only
// point at a location that actually exists in the indexed diff or the
// fetched content. Dangling references degrade to plain text, invalid line
// suffixes degrade to the file-level anchor.
func (e *Engine) sanitizeLinks(s *ReviewState, out string) string {
	hashToPath := make(map[string]string, len(s.PR.Files))
	for _, f := range s.PR.Files {
		hashToPath[fmt.Sprintf("%x", sha256.Sum256([]byte(f.Path)))] = f.Path
	}
	repoURL := strings.TrimRight(s.PR.Metadata.RepoURL, "/")

	return mdLinkRe.ReplaceAllStringFunc(out, func(link string) string {
		m := mdLinkRe.FindStringSubmatch(link)
		label, url := m[1], m[2]

		if dm := diffFragRe.FindStringSubmatch(url); dm != nil {
			path, known := hashToPath[dm[1]]
			if !known {
				s.Note("stripped link to unknown diff anchor %s", dm[1][:12])
				return label
			}
			if dm[2] == "" {
				return link
			}
			side := diffindex.NewSide
			if dm[2] == "L" {
				side = diffindex.OldSide
			}
			line := atoi(dm[3])
			if s.Index.LineInDiff(path, line, side) {
				return link
			}
			if side == diffindex.NewSide && s.FetchedCovers(path, line) {
				return link
			}
			s.Note("link to %s line %d not in diff; downgraded to file anchor", path, line)
			return fmt.Sprintf("[%s](%s)", label, diffAnchorFor(s, path))
		}

		if strings.Contains(url, "/blob/") {
			path := blobPath(url)
			if path == "" || s.Index.File(path) == nil {
				s.Note("stripped blob link to %q", url)
				return label
			}
			if bm := blobFragRe.FindStringSubmatch(url); bm != nil {
				start := atoi(bm[1])
				end := start
				if bm[2] != "" {
					end = atoi(bm[2])
				}
				if !blobRangeFetched(s, path, start, end) {
					s.Note("blob link to unfetched range %s:%d-%d downgraded", path, start, end)
					return fmt.Sprintf("[%s](%s)", label, diffAnchorFor(s, path))
				}
			}
			return link
		}

		// Repo-local links of any other shape were never offered as anchors.
		if repoURL != "" && strings.HasPrefix(url, repoURL) && strings.Contains(url, "#") {
			s.Note("stripped unrecognized repo link %q", url)
			return label
		}
		return link
	})
}

// blobPath extracts the file path from a blob URL: .../blob/<ref>/<path>.
func blobPath(url string) string {
	if i := strings.Index(url, "#"); i >= 0 {
		url = url[:i]
	}
	i := strings.Index(url, "/blob/")
	if i < 0 {
		return ""
	}
	rest := url[i+len("/blob/"):]
	j := strings.Index(rest, "/")
	if j < 0 {
		return ""
	}
	return rest[j+1:]
}

// blobRangeFetched reports whether a single cached slice covers the whole
// requested range.
func blobRangeFetched(s *ReviewState, path string, start, end int) bool {
	for key := range s.Fetched {
		if key.Path == path && key.Start <= start && end <= key.End {
			return true
		}
	}
	return false
}

// orderSections enforces risk-ascending component sections unless the model
// explicitly declared a foundational-first order. The marker line is always
// removed from the final text.
func (e *Engine) orderSections(s *ReviewState, out string) string {
	if strings.Contains(out, orderMarker) {
		lines := strings.Split(out, "\n")
		kept := lines[:0]
		for _, l := range lines {
			if strings.TrimSpace(l) == orderMarker {
				continue
			}
			kept = append(kept, l)
		}
		return strings.Join(kept, "\n")
	}

	rank := make(map[string]int)
	for i, c := range orderedComponents(s.Topology) {
		rank[c.Name] = i
	}

	lines := strings.Split(out, "\n")

	// Locate component sections: a "### <name>" heading through the line
	// before the next heading of depth three or shallower.
	type section struct{ start, end, rank int }
	var sections []section
	for i := 0; i < len(lines); i++ {
		hm := sectionHead.FindStringSubmatch(lines[i])
		if hm == nil {
			continue
		}
		r, ok := rank[hm[1]]
		if !ok {
			continue
		}
		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			t := lines[j]
			if strings.HasPrefix(t, "# ") || strings.HasPrefix(t, "## ") || strings.HasPrefix(t, "### ") {
				end = j
				break
			}
		}
		sections = append(sections, section{start: i, end: end, rank: r})
		i = end - 1
	}
	if len(sections) < 2 {
		return out
	}

	// Only a contiguous block can be reordered without mangling surrounding
	// prose. Interleaved sections keep the model's order.
	for i := 1; i < len(sections); i++ {
		if sections[i].start != sections[i-1].end {
			return out
		}
	}

	inOrder := sort.SliceIsSorted(sections, func(i, j int) bool { return sections[i].rank < sections[j].rank })
	if inOrder {
		return out
	}

	sorted := make([]section, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].rank < sorted[j].rank })

	var b strings.Builder
	for _, l := range lines[:sections[0].start] {
		b.WriteString(l + "\n")
	}
	for _, sec := range sorted {
		for _, l := range lines[sec.start:sec.end] {
			b.WriteString(l + "\n")
		}
	}
	for _, l := range lines[sections[len(sections)-1].end:] {
		b.WriteString(l + "\n")
	}
	s.Note("component sections reordered to ascending risk")
	return strings.TrimRight(b.String(), "\n")
}

// atoi is for regex-captured digit runs, which always parse.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
