package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/roadmap/internal/diffindex"
	"github.com/dshills/roadmap/internal/providers"
)

// synthesisState builds a fully populated pre-synthesis state.
func synthesisState(t *testing.T, e *Engine, paths ...string) *ReviewState {
	t.Helper()
	s := NewState(testPR(paths...))
	require.NoError(t, e.indexDiffs(context.Background(), s))
	for _, p := range paths {
		s.Topology.Components = append(s.Topology.Components, Component{
			Name: "Component " + p, Paths: []string{p}, Risk: RiskLow,
		})
	}
	return s
}

func TestSynthesizeSetsRoadmap(t *testing.T) {
	model := &fakeModel{responses: []providers.Response{
		{Content: "## Summary\nSmall change.\n"},
	}}
	e := newTestEngine(t, model, nil)
	s := synthesisState(t, e, "a.go")

	require.NoError(t, e.synthesize(context.Background(), s))
	assert.Equal(t, "## Summary\nSmall change.\n", s.Roadmap)
}

func TestSynthesizeEmptyResponseRepromptedOnce(t *testing.T) {
	model := &fakeModel{responses: []providers.Response{
		{Content: "   "},
		{Content: "## Summary\nRecovered.\n"},
	}}
	e := newTestEngine(t, model, nil)
	s := synthesisState(t, e, "a.go")

	require.NoError(t, e.synthesize(context.Background(), s))
	assert.Equal(t, 2, model.calls)
	assert.Contains(t, s.Roadmap, "Recovered")
}

func TestSynthesizeEmptyTwiceIsFatal(t *testing.T) {
	model := &fakeModel{responses: []providers.Response{
		{Content: ""},
		{Content: ""},
	}}
	e := newTestEngine(t, model, nil)
	s := synthesisState(t, e, "a.go")

	err := e.synthesize(context.Background(), s)
	var sv *SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Empty(t, s.Roadmap)
}

func TestSanitizeLinksKeepsValidDiffAnchor(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")
	anchor := diffindex.DiffAnchor(s.PR.Metadata.RepoURL, s.PR.Metadata.Number, "a.go")

	in := fmt.Sprintf("See [a.go](%s) and [line 2](%sR2).", anchor, anchor)
	assert.Equal(t, in, e.sanitizeLinks(s, in))
}

func TestSanitizeLinksStripsUnknownAnchor(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")
	ghost := diffindex.DiffAnchor(s.PR.Metadata.RepoURL, s.PR.Metadata.Number, "ghost.go")

	got := e.sanitizeLinks(s, fmt.Sprintf("See [ghost.go](%s).", ghost))
	assert.Equal(t, "See ghost.go.", got)
}

func TestSanitizeLinksDowngradesInvalidLine(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")
	anchor := diffindex.DiffAnchor(s.PR.Metadata.RepoURL, s.PR.Metadata.Number, "a.go")

	// Line 900 is in no hunk and no fetched range.
	got := e.sanitizeLinks(s, fmt.Sprintf("See [here](%sR900).", anchor))
	assert.Equal(t, fmt.Sprintf("See [here](%s).", anchor), got)
}

func TestSanitizeLinksAcceptsFetchedLine(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")
	s.AddFetched(ContentKey{Path: "a.go", Start: 100, End: 150}, "content")
	anchor := diffindex.DiffAnchor(s.PR.Metadata.RepoURL, s.PR.Metadata.Number, "a.go")

	in := fmt.Sprintf("See [here](%sR120).", anchor)
	assert.Equal(t, in, e.sanitizeLinks(s, in))
}

func TestSanitizeLinksBlobAnchors(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")
	s.AddFetched(ContentKey{Path: "a.go", Start: 100, End: 150}, "content")
	m := s.PR.Metadata

	fetched := diffindex.BlobAnchor(m.RepoURL, m.HeadSHA, "a.go", 110, 140)
	in := fmt.Sprintf("See [fetched](%s).", fetched)
	assert.Equal(t, in, e.sanitizeLinks(s, in), "fetched range must survive")

	unfetched := diffindex.BlobAnchor(m.RepoURL, m.HeadSHA, "a.go", 300, 320)
	got := e.sanitizeLinks(s, fmt.Sprintf("See [unfetched](%s).", unfetched))
	fileAnchor := diffindex.DiffAnchor(m.RepoURL, m.Number, "a.go")
	assert.Equal(t, fmt.Sprintf("See [unfetched](%s).", fileAnchor), got)

	ghost := diffindex.BlobAnchor(m.RepoURL, m.HeadSHA, "ghost.go", 1, 5)
	got = e.sanitizeLinks(s, fmt.Sprintf("See [ghost](%s).", ghost))
	assert.Equal(t, "See ghost.", got)
}

func TestSanitizeLinksLeavesExternalLinks(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go")

	in := "Per [the docs](https://docs.example.com/guide#section)."
	assert.Equal(t, in, e.sanitizeLinks(s, in))
}

func TestOrderSectionsRiskAscending(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go", "b.go")
	s.Topology.Components[0].Risk = RiskHigh // "Component a.go"
	s.Topology.Components[1].Risk = RiskLow  // "Component b.go"

	in := "## Review Order\n### Component a.go\nrisky first\n### Component b.go\nsafe second\n\n## Watch Outs\nnone"
	got := e.orderSections(s, in)
	// The blank line belongs to the second section and moves with it.
	want := "## Review Order\n### Component b.go\nsafe second\n\n### Component a.go\nrisky first\n## Watch Outs\nnone"
	assert.Equal(t, want, got)
}

func TestOrderSectionsMarkerKeepsModelOrder(t *testing.T) {
	e := newTestEngine(t, &fakeModel{}, nil)
	s := synthesisState(t, e, "a.go", "b.go")
	s.Topology.Components[0].Risk = RiskHigh

	in := "## Review Order\n" + orderMarker + "\n### Component a.go\nfoundation\n### Component b.go\ndependent\n"
	got := e.orderSections(s, in)
	assert.NotContains(t, got, orderMarker)
	assert.Contains(t, got, "### Component a.go\nfoundation\n### Component b.go")
}

func TestOrderedComponentsStable(t *testing.T) {
	topo := Topology{Components: []Component{
		{Name: "A", Risk: RiskMedium},
		{Name: "B", Risk: RiskLow},
		{Name: "C", Risk: RiskMedium},
		{Name: "D", Risk: RiskLow},
	}}
	got := orderedComponents(topo)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"B", "D", "A", "C"}, names)
}
