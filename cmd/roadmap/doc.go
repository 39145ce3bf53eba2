// Roadmap generates structured Markdown review guides for pull requests.
//
// It ingests a PR's metadata, diffs, and discussion, groups the changed files
// into logical components, optionally fetches extra file context, and writes
// a guide telling a reviewer what the change does, in what order to read it,
// and where to look closely, with deep links into the PR diff.
//
// Usage:
//
//	roadmap generate acme/widgets/42                  # print guide to stdout
//	roadmap generate https://github.com/acme/widgets/pull/42
//	roadmap generate acme/widgets/42 --output guide.md
//	roadmap generate acme/widgets/42 --post           # comment on the PR
//
// Requires a GITHUB_TOKEN and credentials for the configured LLM provider.
package main
