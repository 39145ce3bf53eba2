package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/roadmap/internal/providers"
)

// rawTopology is the JSON structure returned by the LLM.
type rawTopology struct {
	Components []rawComponent `json:"components"`
	Strategy   string         `json:"strategy"`
}

type rawComponent struct {
	Name      string   `json:"name"`
	Paths     []string `json:"paths"`
	Rationale string   `json:"rationale"`
	Risk      string   `json:"risk"`
}

// riskFloorPatterns force a minimum tier of medium for paths whose changes
// deserve extra attention no matter what the model thinks.
var riskFloorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)auth|credential|secret|token|password|crypt`),
	regexp.MustCompile(`(?i)migration`),
	regexp.MustCompile(`(?i)security|permission|acl`),
	regexp.MustCompile(`\.github/workflows/`),
	regexp.MustCompile(`(?i)dockerfile`),
}

// clusterTopology groups the manifest into components via one model
// invocation, then unconditionally repairs the result so every manifest path
// lands in exactly one component.
func (e *Engine) clusterTopology(ctx context.Context, s *ReviewState) error {
	req := providers.Request{
		System: topologySystemPrompt,
		User:   buildTopologyUser(s),
	}
	resp, err := e.invokeModel(ctx, s, req)
	if err != nil {
		return err
	}

	raw, perr := parseTopology(resp.Content)
	if perr != nil {
		// One bounded repair re-prompt, then fatal.
		repair := providers.Request{
			System: topologySystemPrompt,
			User:   schemaRepairPrompt(perr, resp.Content),
		}
		resp2, err := e.invokeModel(ctx, s, repair)
		if err != nil {
			return err
		}
		raw, perr = parseTopology(resp2.Content)
		if perr != nil {
			return &SchemaViolationError{Detail: "topology", Err: perr}
		}
	}

	s.Topology = repairTopology(s, raw)
	if s.Topology.Repaired {
		s.Note("clustering repair applied: model grouping omitted or duplicated paths")
		e.logger.Warn("clustering repair applied", "run_id", s.RunID)
	}

	for i := range s.Topology.Components {
		applyRiskFloor(&s.Topology.Components[i])
	}
	return nil
}

// parseTopology decodes the model's JSON grouping, tolerating markdown code
// fences around the object.
func parseTopology(content string) (rawTopology, error) {
	content = stripCodeFences(content)
	var raw rawTopology
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return rawTopology{}, fmt.Errorf("invalid JSON object: %w", err)
	}
	if len(raw.Components) == 0 {
		return rawTopology{}, fmt.Errorf("no components in response")
	}
	return raw, nil
}

// repairTopology enforces the coverage invariant on untrusted model output:
// every manifest path in exactly one component. Duplicates keep the first
// assignment in model output order; paths the model never mentioned go to a
// synthetic Uncategorized component; paths outside the manifest are dropped.
func repairTopology(s *ReviewState, raw rawTopology) Topology {
	manifest := make(map[string]bool, len(s.PR.Files))
	for _, f := range s.PR.Files {
		manifest[f.Path] = true
	}

	topo := Topology{Strategy: raw.Strategy}
	seen := make(map[string]bool)

	for _, rc := range raw.Components {
		c := Component{
			Name:      strings.TrimSpace(rc.Name),
			Rationale: rc.Rationale,
			Risk:      ParseRiskTier(rc.Risk),
		}
		if c.Name == "" {
			c.Name = "Unnamed"
			topo.Repaired = true
		}
		for _, p := range rc.Paths {
			if !manifest[p] {
				topo.Repaired = true
				continue
			}
			if seen[p] {
				topo.Repaired = true
				continue
			}
			seen[p] = true
			c.Paths = append(c.Paths, p)
		}
		if len(c.Paths) > 0 {
			topo.Components = append(topo.Components, c)
		}
	}

	var missing []string
	for _, f := range s.PR.Files {
		if !seen[f.Path] {
			missing = append(missing, f.Path)
		}
	}
	if len(missing) > 0 {
		topo.Repaired = true
		topo.Components = append(topo.Components, Component{
			Name:      "Uncategorized",
			Paths:     missing,
			Rationale: "Files the grouping did not place; review individually.",
			Risk:      RiskLow,
		})
	}

	return topo
}

// applyRiskFloor raises a component to at least medium when any member path
// matches a sensitive pattern. The model's own tier is never lowered.
func applyRiskFloor(c *Component) {
	for _, p := range c.Paths {
		for _, pat := range riskFloorPatterns {
			if pat.MatchString(p) {
				c.Escalate(RiskMedium)
				return
			}
		}
	}
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
