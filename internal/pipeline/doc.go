// Package pipeline drives the staged analysis that turns an ingested pull
// request into a Markdown review roadmap.
//
// Stages run in a fixed order over one append-only ReviewState: diff
// indexing, topology clustering, a bounded model-directed context expansion
// loop, and final synthesis. Earlier-stage fields are never rewritten by
// later stages; the only field set late is Roadmap, exactly once.
//
// Model output is treated as untrusted everywhere. The clusterer repairs
// groupings so every changed file lands in exactly one component, the
// expansion loop validates every read request against the file manifest and
// a span limit, and the synthesizer strips or downgrades any link that does
// not resolve to an indexed diff line or a fetched content range.
//
// External collaborators enter through two small interfaces: a
// providers.Invoker for model calls and a ContentFetcher for file reads at
// the head revision. Both are injected via [Options], so tests run the whole
// pipeline against fakes.
package pipeline
