// Package diffindex parses per-file unified diff patches into addressable
// hunk ranges and produces deep-link anchors into the PR diff view.
//
// Patches arrive from the pull-request API as bare hunk text; diffindex
// synthesizes git headers and parses them with go-gitdiff. Binary files get a
// sentinel hunk, renamed files carry both paths, and patches over the byte
// threshold are cut at a hunk boundary with the remainder still linkable.
// A malformed patch marks only that file unparseable; indexing of the other
// files proceeds.
//
// Anchors follow GitHub's scheme: the diff view keys files by the SHA-256 of
// their path, with R/L line suffixes for the new and old columns, and blob
// links address a file at a specific revision with #L ranges.
package diffindex
