package diffindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simplePatch = `@@ -1,3 +1,4 @@
 package main
+import "fmt"

 func main() {}
`

const twoHunkPatch = `@@ -1,2 +1,3 @@
 alpha
+beta
 gamma
@@ -20,2 +21,3 @@
 delta
+epsilon
 zeta
`

func TestBuildParsesHunks(t *testing.T) {
	ix := Build([]Patch{{Path: "main.go", Status: "modified", Body: simplePatch}}, 0)

	fi := ix.File("main.go")
	require.NotNil(t, fi)
	require.Len(t, fi.Hunks, 1)

	h := fi.Hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 4, h.NewLines)
	assert.Equal(t, 1, h.Added)
	assert.Equal(t, 0, h.Deleted)
	assert.False(t, fi.Truncated)
	assert.False(t, fi.Unparseable)
}

func TestBuildAddedFile(t *testing.T) {
	body := "@@ -0,0 +1,2 @@\n+line one\n+line two\n"
	ix := Build([]Patch{{Path: "new.go", Status: "added", Body: body}}, 0)

	fi := ix.File("new.go")
	require.NotNil(t, fi)
	require.Len(t, fi.Hunks, 1)
	assert.Equal(t, 2, fi.Hunks[0].Added)
	assert.Equal(t, 2, fi.Hunks[0].NewLines)
}

func TestBuildBinarySentinel(t *testing.T) {
	ix := Build([]Patch{{Path: "logo.png", Status: "added"}}, 0)

	fi := ix.File("logo.png")
	require.NotNil(t, fi)
	assert.True(t, fi.Binary)
	require.Len(t, fi.Hunks, 1)
	assert.True(t, fi.Hunks[0].Binary)
	assert.False(t, ix.LineInDiff("logo.png", 1, NewSide))
}

func TestBuildMalformedDegradesOneFile(t *testing.T) {
	ix := Build([]Patch{
		{Path: "broken.go", Status: "modified", Body: "@@ this is not a hunk header\ngarbage"},
		{Path: "fine.go", Status: "modified", Body: simplePatch},
	}, 0)

	broken := ix.File("broken.go")
	require.NotNil(t, broken)
	assert.True(t, broken.Unparseable)
	assert.Empty(t, broken.Hunks)

	fine := ix.File("fine.go")
	require.NotNil(t, fine)
	assert.False(t, fine.Unparseable)
	assert.Len(t, fine.Hunks, 1)
}

func TestBuildTruncatesAtHunkBoundary(t *testing.T) {
	// Budget covers the first hunk only.
	cut := strings.Index(twoHunkPatch, "@@ -20")
	ix := Build([]Patch{{Path: "big.go", Status: "modified", Body: twoHunkPatch}}, cut+2)

	fi := ix.File("big.go")
	require.NotNil(t, fi)
	assert.True(t, fi.Truncated)
	require.Len(t, fi.Hunks, 1)

	// Lines in the surviving hunk still resolve; lines in the cut tail do not.
	assert.True(t, ix.LineInDiff("big.go", 2, NewSide))
	assert.False(t, ix.LineInDiff("big.go", 22, NewSide))
}

func TestBuildRenamedCarriesBothPaths(t *testing.T) {
	ix := Build([]Patch{{Path: "pkg/new.go", OldPath: "pkg/old.go", Status: "renamed", Body: simplePatch}}, 0)

	fi := ix.File("pkg/new.go")
	require.NotNil(t, fi)
	assert.Equal(t, "pkg/old.go", fi.OldPath)
	assert.Len(t, fi.Hunks, 1)
}

func TestPathsKeepManifestOrder(t *testing.T) {
	ix := Build([]Patch{
		{Path: "z.go", Status: "modified", Body: simplePatch},
		{Path: "a.go", Status: "modified", Body: simplePatch},
	}, 0)
	assert.Equal(t, []string{"z.go", "a.go"}, ix.Paths())
}
