// Package providers abstracts LLM backends behind the Invoker interface:
// given a prompt and an optional tool schema, return text or tool-call
// requests.
//
// Four backends are supported (anthropic, openai, gemini, and
// ollama/lmstudio), each speaking its vendor's HTTP API directly. All share
// retry-on-rate-limit behavior with exponential backoff, a process-wide
// request limiter, and a configurable per-invocation timeout. Invocation
// timeouts are never retried.
package providers
