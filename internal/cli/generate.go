package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dshills/roadmap/internal/config"
	"github.com/dshills/roadmap/internal/github"
	"github.com/dshills/roadmap/internal/pipeline"
	"github.com/dshills/roadmap/internal/providers"
)

var (
	flagProvider     string
	flagModel        string
	flagRounds       int
	flagMaxFetchSpan int
	flagMaxDiffBytes int
	flagOutput       string
	flagPost         bool
	flagJSON         bool
	flagNoRedact     bool
	flagVerbose      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <pr>",
	Short: "Generate a review guide for a pull request",
	Long: `Generate analyzes a pull request and writes a Markdown review guide.

The PR is identified either as owner/repo/number or as a full pull request URL:

  roadmap generate acme/widgets/42
  roadmap generate https://github.com/acme/widgets/pull/42

By default the guide is printed to stdout. Use --output to write it to a file
and --post to publish it as a PR comment.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	f.StringVar(&flagModel, "model", "", "Model name")
	f.IntVar(&flagRounds, "rounds", 0, "Maximum context expansion rounds")
	f.IntVar(&flagMaxFetchSpan, "max-fetch-span", 0, "Maximum lines per content fetch")
	f.IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Maximum diff size per file in bytes")
	f.StringVarP(&flagOutput, "output", "o", "", "Write the guide to a file instead of stdout")
	f.BoolVar(&flagPost, "post", false, "Post the guide as a PR comment")
	f.BoolVar(&flagJSON, "json", false, "Emit a JSON run report instead of plain Markdown")
	f.BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagRounds > 0 {
		m["expansionRounds"] = fmt.Sprintf("%d", flagRounds)
	}
	if flagMaxFetchSpan > 0 {
		m["maxFetchSpan"] = fmt.Sprintf("%d", flagMaxFetchSpan)
	}
	if flagMaxDiffBytes > 0 {
		m["maxDiffBytes"] = fmt.Sprintf("%d", flagMaxDiffBytes)
	}
	return m
}

// runReport is the --json output shape.
type runReport struct {
	RunID      string                 `json:"runId"`
	PR         string                 `json:"pr"`
	Title      string                 `json:"title"`
	Components []reportComponent      `json:"components"`
	Rounds     int                    `json:"expansionRounds"`
	TokensUsed int                    `json:"tokensUsed"`
	Notes      []string               `json:"notes,omitempty"`
	Timings    []pipeline.StageTiming `json:"timings"`
	Roadmap    string                 `json:"roadmap"`
}

type reportComponent struct {
	Name  string   `json:"name"`
	Risk  string   `json:"risk"`
	Paths []string `json:"paths"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return err
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}

	id, err := github.ParseIdentifier(args[0])
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// One limiter for both external APIs so concurrent runs share a budget.
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst)

	gh, err := github.NewClient(github.Options{
		Limiter:      limiter,
		FetchRetries: cfg.FetchRetries,
		FetchTimeout: secondsDuration(cfg.FetchTimeoutSeconds),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitAuthError
		return nil
	}

	model, err := providers.New(cfg.Provider, cfg.Model, providers.Options{Limiter: limiter})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitAuthError
		return nil
	}

	engine, err := pipeline.NewEngine(pipeline.Options{
		Config:  cfg,
		Model:   model,
		Fetcher: gh.RangeFetcher(id),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pr, err := gh.GetPRContext(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if providers.IsAuthError(err) {
			exitCode = ExitAuthError
		} else {
			exitCode = ExitRuntimeError
		}
		return nil
	}

	state, err := engine.Run(ctx, pr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if providers.IsAuthError(err) {
			exitCode = ExitAuthError
		} else {
			exitCode = ExitRuntimeError
		}
		return nil
	}

	if err := emitRoadmap(state, id.String()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}

	if flagPost {
		if err := postRoadmap(ctx, gh, id, state, pr.Metadata.Draft); err != nil {
			fmt.Fprintf(os.Stderr, "Error posting comment: %v\n", err)
			exitCode = ExitRuntimeError
		}
	}
	return nil
}

// emitRoadmap writes the guide (or the JSON run report) to the chosen sink.
func emitRoadmap(s *pipeline.ReviewState, pr string) error {
	out := s.Roadmap
	if flagJSON {
		report := runReport{
			RunID:      s.RunID,
			PR:         pr,
			Title:      s.PR.Metadata.Title,
			Rounds:     s.ExpansionRounds,
			TokensUsed: s.TokensUsed,
			Notes:      s.Notes,
			Timings:    s.Timings,
			Roadmap:    s.Roadmap,
		}
		for _, c := range s.Topology.Components {
			report.Components = append(report.Components, reportComponent{
				Name: c.Name, Risk: c.Risk.String(), Paths: c.Paths,
			})
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		out = string(data) + "\n"
	}

	if flagOutput != "" {
		return os.WriteFile(flagOutput, []byte(out), 0o644)
	}
	_, err := fmt.Fprint(os.Stdout, out)
	return err
}

// postRoadmap publishes the guide as a PR comment. Posting to a draft gets a
// header note so readers know the guide may go stale.
func postRoadmap(ctx context.Context, gh *github.Client, id github.Identifier, s *pipeline.ReviewState, draft bool) error {
	if ok, err := gh.CheckWriteAccess(ctx, id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("token has no write access to %s/%s", id.Owner, id.Repo)
	}

	body := s.Roadmap
	if draft {
		body = "> Note: this pull request is still a draft; the guide below reflects its current state.\n\n" + body
	}
	return gh.PostComment(ctx, id, body)
}

func secondsDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
