package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ToolSpec describes one tool the model may request a call to.
// Schema is a JSON Schema object for the tool's arguments.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Request contains the data sent to an LLM for one invocation.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	Tools       []ToolSpec
}

// Response contains the model's reply: text, tool-call requests, or both.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	TokensUsed int
}

// Invoker is the provider abstraction interface.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Options carries cross-provider settings.
type Options struct {
	// Limiter is the process-wide request throttle shared with the
	// source-control client. Nil disables throttling.
	Limiter *rate.Limiter
	// Timeout bounds a single invocation. Zero uses the provider default.
	Timeout time.Duration
}

// New creates a provider by name.
func New(provider, model string, opts Options) (Invoker, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model, opts)
	case "openai":
		return NewOpenAI(model, opts)
	case "gemini", "google":
		return NewGemini(model, opts)
	case "ollama", "lmstudio":
		return NewOllama(model, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// wait blocks on the shared limiter, if one is configured.
func (o Options) wait(ctx context.Context) error {
	if o.Limiter == nil {
		return nil
	}
	if err := o.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for request budget: %w", err)
	}
	return nil
}

func (o Options) timeout(def time.Duration) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return def
}
