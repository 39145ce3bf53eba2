package pipeline

import "fmt"

// IngestionError means the PR could not be fetched or its metadata is
// unusable. Fatal, never retried.
type IngestionError struct {
	Identifier string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingesting %s: %v", e.Identifier, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// StageError wraps a failure with the pipeline stage it occurred in. The
// caller always learns which stage failed and why.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ModelInvocationError is a failed LLM call. Fatal for the stage; model
// calls are not blind-retried beyond the provider's rate-limit handling.
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// SchemaViolationError means model output failed structural validation after
// the one allowed repair re-prompt.
type SchemaViolationError struct {
	Detail string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("model output failed validation: %s: %v", e.Detail, e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// FetchError is a content fetch that failed after the retry budget.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
