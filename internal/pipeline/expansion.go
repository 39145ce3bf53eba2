package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/roadmap/internal/providers"
)

// loopState tracks the expansion loop's position. Transitions are linear:
// idle -> awaiting decision -> tool requested (back to awaiting) or
// satisfied -> terminal.
type loopState int

const (
	loopIdle loopState = iota
	loopAwaitingDecision
	loopToolRequested
	loopSatisfied
	loopTerminal
)

const readFileTool = "read_file"

func readFileSpec(maxSpan int) providers.ToolSpec {
	return providers.ToolSpec{
		Name:        readFileTool,
		Description: fmt.Sprintf("Read a bounded line range from a file changed in this PR, at the head revision. The range may cover at most %d lines.", maxSpan),
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       map[string]any{"type": "string", "description": "Path of a file changed in this PR"},
				"start_line": map[string]any{"type": "integer", "description": "First line to read, 1-based"},
				"end_line":   map[string]any{"type": "integer", "description": "Last line to read, inclusive"},
			},
			"required": []string{"path", "start_line", "end_line"},
		},
	}
}

// expandContext runs the bounded model-directed read loop. Each round is one
// model decision; an invalid read request gets one reformulated re-prompt
// before the loop fails open to synthesis. The round cap is a hard ceiling.
func (e *Engine) expandContext(ctx context.Context, s *ReviewState) error {
	state := loopIdle
	tool := readFileSpec(e.cfg.MaxFetchSpan)

	for state != loopTerminal {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.ExpansionRounds >= e.cfg.ExpansionRounds {
			if state != loopSatisfied {
				s.Note("expansion budget exhausted after %d rounds; synthesizing with partial context", s.ExpansionRounds)
				e.logger.Info("expansion budget exhausted", "run_id", s.RunID, "rounds", s.ExpansionRounds)
			}
			break
		}

		state = loopAwaitingDecision
		req := providers.Request{
			System: expansionSystemPrompt,
			User:   e.buildDecisionUser(s),
			Tools:  []providers.ToolSpec{tool},
		}
		resp, err := e.invokeModel(ctx, s, req)
		if err != nil {
			return err
		}
		s.ExpansionRounds++

		call, ok := firstReadCall(resp)
		if !ok {
			state = loopSatisfied
			break
		}
		state = loopToolRequested

		key, verr := e.validateReadCall(s, call)
		if verr != nil {
			// Invalid request: reformulate once without consuming a round.
			s.Note("rejected read request (%v); re-prompting with corrected bounds", verr)
			retry := providers.Request{
				System: expansionSystemPrompt,
				User:   e.buildDecisionUser(s) + "\n\n" + reformulateHint(verr, e.cfg.MaxFetchSpan),
				Tools:  []providers.ToolSpec{tool},
			}
			resp, err = e.invokeModel(ctx, s, retry)
			if err != nil {
				return err
			}
			call, ok = firstReadCall(resp)
			if !ok {
				state = loopSatisfied
				break
			}
			key, verr = e.validateReadCall(s, call)
			if verr != nil {
				// Second invalid request in the round: satisfied by policy.
				s.Note("second invalid read request (%v); proceeding to synthesis", verr)
				e.logger.Warn("expansion terminated on invalid request", "run_id", s.RunID, "error", verr)
				state = loopSatisfied
				break
			}
		}

		if err := e.fetchContent(ctx, s, key); err != nil {
			return err
		}
	}

	return nil
}

// firstReadCall extracts the read_file call from a response, if any. A reply
// with no tool call (including the DONE sentinel) means the model is
// satisfied.
func firstReadCall(resp providers.Response) (providers.ToolCall, bool) {
	for _, tc := range resp.ToolCalls {
		if tc.Name == readFileTool {
			return tc, true
		}
	}
	return providers.ToolCall{}, false
}

// validateReadCall checks a requested read against the manifest and span
// limit. Only files changed in the PR may be read.
func (e *Engine) validateReadCall(s *ReviewState, call providers.ToolCall) (ContentKey, error) {
	path, _ := call.Args["path"].(string)
	start := intArg(call.Args, "start_line")
	end := intArg(call.Args, "end_line")

	if path == "" {
		return ContentKey{}, fmt.Errorf("missing path")
	}
	if !s.Index.Contains(path) {
		return ContentKey{}, fmt.Errorf("path %s is not part of this PR", path)
	}
	if start < 1 || end < start {
		return ContentKey{}, fmt.Errorf("invalid line range %d-%d", start, end)
	}
	if span := end - start + 1; span > e.cfg.MaxFetchSpan {
		return ContentKey{}, fmt.Errorf("range %d-%d spans %d lines, limit is %d", start, end, span, e.cfg.MaxFetchSpan)
	}
	return ContentKey{Path: path, Start: start, End: end}, nil
}

// fetchContent performs one external read at the head revision, unless the
// key is already cached. Fetched content may escalate the owning component's
// risk tier, never lower it.
func (e *Engine) fetchContent(ctx context.Context, s *ReviewState, key ContentKey) error {
	if _, ok := s.FetchedContent(key); ok {
		s.Note("read request %s served from cache", key)
		e.logger.Debug("fetch cache hit", "run_id", s.RunID, "key", key.String())
		return nil
	}

	content, err := e.fetcher.FetchFileRange(ctx, key.Path, s.PR.Metadata.HeadSHA, key.Start, key.End)
	if err != nil {
		return &FetchError{Path: key.Path, Err: err}
	}
	content = e.redactText(content)
	s.AddFetched(key, content)
	e.logger.Info("content fetched", "run_id", s.RunID, "key", key.String(), "bytes", len(content))

	if c := s.ComponentFor(key.Path); c != nil && contentLooksRisky(content) {
		if c.Escalate(RiskMedium) {
			s.Note("risk for %s raised to %s based on fetched content", c.Name, c.Risk)
		}
	}
	return nil
}

// contentLooksRisky flags fetched content that touches sensitive territory.
func contentLooksRisky(content string) bool {
	for _, pat := range riskFloorPatterns {
		if pat.MatchString(content) {
			return true
		}
	}
	return false
}

func reformulateHint(verr error, maxSpan int) string {
	return fmt.Sprintf(
		"Your previous read_file request was rejected: %v. Request only files listed in the changed-files manifest, with 1-based start_line <= end_line covering at most %d lines. If you no longer need more context, reply DONE.",
		verr, maxSpan,
	)
}

// intArg reads an integer tool argument regardless of the JSON number type
// the provider decoded it into.
func intArg(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		fmt.Sscanf(strings.TrimSpace(v), "%d", &n)
		return n
	default:
		return 0
	}
}
