package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/roadmap/internal/config"
	"github.com/dshills/roadmap/internal/diffindex"
	"github.com/dshills/roadmap/internal/providers"
	"github.com/dshills/roadmap/internal/redact"
)

// ContentFetcher reads a bounded slice of a file at the PR's head revision.
type ContentFetcher interface {
	FetchFileRange(ctx context.Context, path, ref string, startLine, endLine int) (string, error)
}

// Options configures an Engine.
type Options struct {
	Config  config.Config
	Model   providers.Invoker
	Fetcher ContentFetcher
	Logger  *slog.Logger
}

// Engine drives the analysis stages over a shared ReviewState.
type Engine struct {
	cfg     config.Config
	model   providers.Invoker
	fetcher ContentFetcher
	logger  *slog.Logger
	tokens  *tokenCounter
}

// NewEngine creates an Engine. Model and Fetcher are required.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("model invoker is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("content fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     opts.Config,
		model:   opts.Model,
		fetcher: opts.Fetcher,
		logger:  logger,
		tokens:  newTokenCounter(),
	}, nil
}

type stage struct {
	name string
	run  func(ctx context.Context, s *ReviewState) error
}

// Run executes the pipeline: diff-index -> topology -> context-expansion ->
// synthesis. Each stage only appends to the state. Cancellation takes effect
// at stage and round boundaries; in-flight external calls finish or time out.
func (e *Engine) Run(ctx context.Context, pr PRContext) (*ReviewState, error) {
	s := NewState(pr)
	e.logger.Info("run started", "run_id", s.RunID, "pr", pr.Metadata.Number, "files", len(pr.Files))

	stages := []stage{
		{"diff-index", e.indexDiffs},
		{"topology", e.clusterTopology},
		{"context-expansion", e.expandContext},
		{"synthesis", e.synthesize},
	}

	// Nothing to analyze: index for completeness, emit the fixed roadmap,
	// and never touch the model.
	if len(pr.Files) == 0 {
		if err := e.indexDiffs(ctx, s); err != nil {
			return nil, &StageError{Stage: "diff-index", Err: err}
		}
		s.Roadmap = emptyRoadmap(pr)
		e.logger.Info("run finished", "run_id", s.RunID, "empty", true)
		return s, nil
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: st.name, Err: err}
		}
		e.logger.Info("stage started", "run_id", s.RunID, "stage", st.name)
		start := time.Now()
		if err := st.run(ctx, s); err != nil {
			e.logger.Error("stage failed", "run_id", s.RunID, "stage", st.name, "error", err)
			return nil, &StageError{Stage: st.name, Err: err}
		}
		s.Timings = append(s.Timings, StageTiming{Stage: st.name, Ms: time.Since(start).Milliseconds()})
		e.logger.Info("stage finished", "run_id", s.RunID, "stage", st.name)
	}

	e.logger.Info("run finished", "run_id", s.RunID,
		"rounds", s.ExpansionRounds, "components", len(s.Topology.Components), "tokens", s.TokensUsed)
	return s, nil
}

// indexDiffs is the first stage: parse every file's patch into hunks.
// Parse failures degrade per file and are recorded, never fatal.
func (e *Engine) indexDiffs(_ context.Context, s *ReviewState) error {
	patches := make([]diffindex.Patch, 0, len(s.PR.Files))
	for _, f := range s.PR.Files {
		patches = append(patches, diffindex.Patch{
			Path:    f.Path,
			OldPath: f.OldPath,
			Status:  f.Status,
			Body:    f.Patch,
		})
	}
	s.Index = diffindex.Build(patches, e.cfg.MaxDiffBytes)

	for _, path := range s.Index.Paths() {
		fi := s.Index.File(path)
		if fi.Unparseable {
			s.Note("diff parse failed for %s; file indexed without hunks", path)
			e.logger.Warn("diff parse failed", "run_id", s.RunID, "path", path)
		}
		if fi.Truncated {
			s.Note("diff for %s truncated at %d bytes", path, e.cfg.MaxDiffBytes)
		}
	}
	return nil
}

// invokeModel wraps one LLM call with the configured ceiling and token
// accounting.
func (e *Engine) invokeModel(ctx context.Context, s *ReviewState, req providers.Request) (providers.Response, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = e.cfg.MaxTokens
	}
	if t := e.cfg.ModelTimeoutSeconds; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}
	resp, err := e.model.Invoke(ctx, req)
	if err != nil {
		return providers.Response{}, &ModelInvocationError{Err: err}
	}
	s.TokensUsed += resp.TokensUsed
	return resp, nil
}

func (e *Engine) redactText(text string) string {
	if e.cfg.Privacy.RedactSecrets {
		return redact.Secrets(text)
	}
	return text
}

func diffAnchorFor(s *ReviewState, path string) string {
	return diffindex.DiffAnchor(s.PR.Metadata.RepoURL, s.PR.Metadata.Number, path)
}

func emptyRoadmap(pr PRContext) string {
	return fmt.Sprintf(
		"# Review Guide: %s\n\nThis pull request changes no files. There is nothing to review.\n",
		pr.Metadata.Title,
	)
}
