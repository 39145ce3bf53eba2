package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/roadmap/internal/diffindex"
)

// Metadata holds the PR fields that never change after ingestion.
type Metadata struct {
	Number      int
	Title       string
	Description string
	Author      string
	BaseRef     string
	HeadRef     string
	HeadSHA     string
	RepoURL     string
	Draft       bool
}

// FileChange is one entry in the PR file manifest.
type FileChange struct {
	Path      string
	OldPath   string
	Status    string // added, modified, removed, renamed
	Additions int
	Deletions int
	Patch     string
}

// Comment is one existing discussion entry, either general (Path empty) or
// anchored to a diff line.
type Comment struct {
	ID       int64
	Author   string
	Body     string
	Path     string
	Line     int
	Resolved bool
}

// PRContext aggregates everything ingested for one pull request.
type PRContext struct {
	Metadata Metadata
	Files    []FileChange
	Comments []Comment
}

// RiskTier orders components by review attention required.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
)

func (r RiskTier) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseRiskTier maps a model-supplied tier string to a RiskTier.
// Unknown values default to low so heuristic floors still apply on top.
func ParseRiskTier(s string) RiskTier {
	switch s {
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Component is one logical group of changed files.
type Component struct {
	Name      string
	Paths     []string
	Rationale string
	Risk      RiskTier
}

// Escalate raises the component's risk tier. It never lowers it.
// Returns true when the tier actually changed.
func (c *Component) Escalate(t RiskTier) bool {
	if t > c.Risk {
		c.Risk = t
		return true
	}
	return false
}

// Topology is the clusterer's output: every manifest path in exactly one
// component. Repaired records whether the deterministic repair step fired.
type Topology struct {
	Components []Component
	Strategy   string
	Repaired   bool
}

// ContentKey identifies one fetched file slice. Fetching the same key twice
// is a cache hit, never a second external read.
type ContentKey struct {
	Path  string
	Start int
	End   int
}

func (k ContentKey) String() string {
	return fmt.Sprintf("%s:%d-%d", k.Path, k.Start, k.End)
}

// StageTiming records wall time spent in one pipeline stage.
type StageTiming struct {
	Stage string `json:"stage"`
	Ms    int64  `json:"ms"`
}

// ReviewState is the single record threaded through every stage. Stages only
// ever add to it; the one exception is Roadmap, set exactly once at the end.
type ReviewState struct {
	RunID string
	PR    PRContext

	Index           *diffindex.Index
	Topology        Topology
	Fetched         map[ContentKey]string
	FetchOrder      []ContentKey
	ExpansionRounds int
	Notes           []string
	Timings         []StageTiming
	TokensUsed      int

	Roadmap string
}

// NewState creates the state for one invocation.
func NewState(pr PRContext) *ReviewState {
	return &ReviewState{
		RunID:   uuid.NewString(),
		PR:      pr,
		Fetched: make(map[ContentKey]string),
	}
}

// AddFetched appends content under key. Returns false on a cache hit, in
// which case the existing entry is kept untouched.
func (s *ReviewState) AddFetched(key ContentKey, content string) bool {
	if _, ok := s.Fetched[key]; ok {
		return false
	}
	s.Fetched[key] = content
	s.FetchOrder = append(s.FetchOrder, key)
	return true
}

// FetchedContent returns the cached content for key.
func (s *ReviewState) FetchedContent(key ContentKey) (string, bool) {
	content, ok := s.Fetched[key]
	return content, ok
}

// FetchedCovers reports whether any cached slice of path contains line.
func (s *ReviewState) FetchedCovers(path string, line int) bool {
	for key := range s.Fetched {
		if key.Path == path && line >= key.Start && line <= key.End {
			return true
		}
	}
	return false
}

// ComponentFor returns the component owning path, or nil.
func (s *ReviewState) ComponentFor(path string) *Component {
	for i := range s.Topology.Components {
		for _, p := range s.Topology.Components[i].Paths {
			if p == path {
				return &s.Topology.Components[i]
			}
		}
	}
	return nil
}

// Note records an observability annotation on the state.
func (s *ReviewState) Note(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}
