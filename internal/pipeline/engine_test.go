package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/roadmap/internal/config"
	"github.com/dshills/roadmap/internal/diffindex"
	"github.com/dshills/roadmap/internal/providers"
)

// fakeModel replays a scripted sequence of responses.
type fakeModel struct {
	responses []providers.Response
	errs      []error
	calls     int
	requests  []providers.Request
}

func (m *fakeModel) Invoke(_ context.Context, req providers.Request) (providers.Response, error) {
	i := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return providers.Response{}, m.errs[i]
	}
	if i >= len(m.responses) {
		return providers.Response{}, fmt.Errorf("unexpected call %d", i)
	}
	return m.responses[i], nil
}

func (m *fakeModel) Name() string { return "fake" }

// fakeFetcher serves canned content and counts external reads.
type fakeFetcher struct {
	content map[string]string
	err     error
	calls   int
}

func (f *fakeFetcher) FetchFileRange(_ context.Context, path, _ string, start, end int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if c, ok := f.content[fmt.Sprintf("%s:%d-%d", path, start, end)]; ok {
		return c, nil
	}
	return "line content\n", nil
}

const samplePatch = `@@ -1,3 +1,4 @@
 package main
+import "fmt"
 func main() {
 }`

func testPR(paths ...string) PRContext {
	pr := PRContext{
		Metadata: Metadata{
			Number:  7,
			Title:   "Add login flow",
			Author:  "octocat",
			BaseRef: "main",
			HeadRef: "feature/login",
			HeadSHA: "abc123def",
			RepoURL: "https://github.com/acme/widgets",
		},
	}
	for _, p := range paths {
		pr.Files = append(pr.Files, FileChange{
			Path: p, Status: "modified", Additions: 1, Patch: samplePatch,
		})
	}
	return pr
}

func newTestEngine(t *testing.T, model providers.Invoker, fetcher ContentFetcher) *Engine {
	t.Helper()
	if fetcher == nil {
		fetcher = &fakeFetcher{}
	}
	e, err := NewEngine(Options{Config: config.Default(), Model: model, Fetcher: fetcher})
	require.NoError(t, err)
	return e
}

func topologyJSON(paths ...string) string {
	out := `{"components":[{"name":"Core","paths":[`
	for i, p := range paths {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", p)
	}
	return out + `],"rationale":"everything","risk":"low"}],"strategy":"top down"}`
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Options{Config: config.Default(), Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
	_, err = NewEngine(Options{Config: config.Default(), Model: &fakeModel{}})
	assert.Error(t, err)
}

func TestRunZeroFiles(t *testing.T) {
	model := &fakeModel{}
	e := newTestEngine(t, model, nil)

	s, err := e.Run(context.Background(), testPR())
	require.NoError(t, err)
	assert.Contains(t, s.Roadmap, "nothing to review")
	assert.Equal(t, 0, model.calls, "empty PR must never invoke the model")
	assert.Equal(t, 0, s.ExpansionRounds)
}

func TestRunEndToEnd(t *testing.T) {
	pr := testPR("api/server.go", "api/handlers.go", "auth/login.go")
	anchor := diffindex.DiffAnchor(pr.Metadata.RepoURL, pr.Metadata.Number, "auth/login.go")

	model := &fakeModel{responses: []providers.Response{
		{Content: topologyJSON("api/server.go", "api/handlers.go", "auth/login.go"), TokensUsed: 100},
		{Content: "DONE", TokensUsed: 50},
		{Content: fmt.Sprintf(
			"## Summary\nAdds login.\n\n## Review Order\n### Core\nStart with [login.go](%sR2).\n\n## Watch Outs\nSession fixation.\n",
			anchor), TokensUsed: 200},
	}}
	e := newTestEngine(t, model, nil)

	s, err := e.Run(context.Background(), pr)
	require.NoError(t, err)

	assert.Equal(t, 3, model.calls)
	assert.Equal(t, 350, s.TokensUsed)
	assert.Contains(t, s.Roadmap, anchor+"R2")
	assert.Len(t, s.Timings, 4)

	// Coverage invariant: every manifest path in exactly one component.
	seen := map[string]int{}
	for _, c := range s.Topology.Components {
		for _, p := range c.Paths {
			seen[p]++
		}
	}
	for _, f := range pr.Files {
		assert.Equal(t, 1, seen[f.Path], f.Path)
	}

	// auth path trips the heuristic floor even though the model said low.
	c := s.ComponentFor("auth/login.go")
	require.NotNil(t, c)
	assert.Equal(t, RiskMedium, c.Risk)

	// Later stages only appended: the index still mirrors the manifest and
	// no fetches happened without a tool call.
	assert.Equal(t, []string{"api/server.go", "api/handlers.go", "auth/login.go"}, s.Index.Paths())
	assert.Empty(t, s.FetchOrder)
}

func TestRunStageFailureNamesStage(t *testing.T) {
	model := &fakeModel{
		errs: []error{fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	e := newTestEngine(t, model, nil)

	_, err := e.Run(context.Background(), testPR("a.go"))
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "topology", se.Stage)
	var me *ModelInvocationError
	assert.ErrorAs(t, err, &me)
}

func TestRunUnparseableFileDoesNotAbort(t *testing.T) {
	pr := testPR("good.go")
	pr.Files = append(pr.Files, FileChange{
		Path: "broken.go", Status: "modified", Patch: "@@ not a hunk header @@\ngarbage",
	})

	model := &fakeModel{responses: []providers.Response{
		{Content: topologyJSON("good.go", "broken.go")},
		{Content: "DONE"},
		{Content: "## Summary\nFine.\n"},
	}}
	e := newTestEngine(t, model, nil)

	s, err := e.Run(context.Background(), pr)
	require.NoError(t, err)
	require.NotNil(t, s.Index.File("broken.go"))
	assert.True(t, s.Index.File("broken.go").Unparseable)
	assert.NotEmpty(t, s.Roadmap)

	found := false
	for _, n := range s.Notes {
		if n == "diff parse failed for broken.go; file indexed without hunks" {
			found = true
		}
	}
	assert.True(t, found, "expected a parse-failure note, got %v", s.Notes)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(t, &fakeModel{}, nil)
	_, err := e.Run(ctx, testPR("a.go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
