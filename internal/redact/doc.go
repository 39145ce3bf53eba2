// Package redact scrubs secret-shaped strings from text before it is sent
// to an LLM provider. Diff hunks and fetched file content both pass through
// [Secrets] when redaction is enabled (the default).
package redact
