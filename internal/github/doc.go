// Package github is the source-control data provider: it ingests pull
// request metadata, file manifests, and comments over the GitHub REST API,
// fetches bounded file-content ranges at the head revision, and posts the
// finished roadmap as a comment.
//
// Requests share an optional rate limiter so concurrent analyses draw from
// one global API budget. Content fetches retry with backoff; everything else
// fails fast.
package github
