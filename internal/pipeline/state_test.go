package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddFetchedCacheHit(t *testing.T) {
	s := NewState(testPR("a.go"))
	key := ContentKey{Path: "a.go", Start: 1, End: 10}

	assert.True(t, s.AddFetched(key, "first"))
	assert.False(t, s.AddFetched(key, "second"))

	got, ok := s.FetchedContent(key)
	assert.True(t, ok)
	assert.Equal(t, "first", got, "cache hit must keep the original entry")
	assert.Len(t, s.FetchOrder, 1)
}

func TestFetchedCovers(t *testing.T) {
	s := NewState(testPR("a.go"))
	s.AddFetched(ContentKey{Path: "a.go", Start: 10, End: 20}, "x")

	assert.True(t, s.FetchedCovers("a.go", 10))
	assert.True(t, s.FetchedCovers("a.go", 20))
	assert.False(t, s.FetchedCovers("a.go", 21))
	assert.False(t, s.FetchedCovers("b.go", 15))
}

func TestComponentEscalate(t *testing.T) {
	c := Component{Risk: RiskMedium}
	assert.False(t, c.Escalate(RiskLow))
	assert.Equal(t, RiskMedium, c.Risk)
	assert.True(t, c.Escalate(RiskHigh))
	assert.Equal(t, RiskHigh, c.Risk)
}

func TestParseRiskTier(t *testing.T) {
	assert.Equal(t, RiskHigh, ParseRiskTier("high"))
	assert.Equal(t, RiskMedium, ParseRiskTier("medium"))
	assert.Equal(t, RiskLow, ParseRiskTier("low"))
	assert.Equal(t, RiskLow, ParseRiskTier("critical"))
}

func TestContentKeyString(t *testing.T) {
	key := ContentKey{Path: "pkg/auth.go", Start: 5, End: 42}
	assert.Equal(t, "pkg/auth.go:5-42", key.String())
}
