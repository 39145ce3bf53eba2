// Package cli implements the roadmap command-line interface using cobra.
//
// Commands: generate (build a review guide for a PR), config (manage the
// config file), models (list providers, validate credentials), version.
package cli
