package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/roadmap/internal/pipeline"
)

func resetFlags() {
	flagProvider = ""
	flagModel = ""
	flagRounds = 0
	flagMaxFetchSpan = 0
	flagMaxDiffBytes = 0
	flagOutput = ""
	flagPost = false
	flagJSON = false
	flagNoRedact = false
	flagVerbose = false
}

func TestBuildOverrides(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)

	assert.Empty(t, buildOverrides())

	flagProvider = "ollama"
	flagModel = "llama3.3"
	flagRounds = 3
	flagMaxFetchSpan = 200

	got := buildOverrides()
	assert.Equal(t, map[string]string{
		"provider":        "ollama",
		"model":           "llama3.3",
		"expansionRounds": "3",
		"maxFetchSpan":    "200",
	}, got)
}

func testState() *pipeline.ReviewState {
	s := pipeline.NewState(pipeline.PRContext{
		Metadata: pipeline.Metadata{Number: 42, Title: "Add login"},
	})
	s.Topology = pipeline.Topology{Components: []pipeline.Component{
		{Name: "Auth", Paths: []string{"auth/login.go"}, Risk: pipeline.RiskHigh},
	}}
	s.ExpansionRounds = 1
	s.TokensUsed = 321
	s.Roadmap = "## Summary\nAdds login.\n"
	return s
}

func TestEmitRoadmapToFile(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	flagOutput = filepath.Join(t.TempDir(), "guide.md")

	require.NoError(t, emitRoadmap(testState(), "acme/widgets/42"))

	data, err := os.ReadFile(flagOutput)
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nAdds login.\n", string(data))
}

func TestEmitRoadmapJSONReport(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	flagJSON = true
	flagOutput = filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, emitRoadmap(testState(), "acme/widgets/42"))

	data, err := os.ReadFile(flagOutput)
	require.NoError(t, err)

	var report runReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "acme/widgets/42", report.PR)
	assert.Equal(t, "Add login", report.Title)
	assert.Equal(t, 321, report.TokensUsed)
	require.Len(t, report.Components, 1)
	assert.Equal(t, "high", report.Components[0].Risk)
	assert.Contains(t, report.Roadmap, "Adds login")
}

func TestGenerateRequiresOneArg(t *testing.T) {
	assert.Error(t, generateCmd.Args(generateCmd, nil))
	assert.Error(t, generateCmd.Args(generateCmd, []string{"a", "b"}))
	assert.NoError(t, generateCmd.Args(generateCmd, []string{"acme/widgets/42"}))
}
