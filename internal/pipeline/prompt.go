package pipeline

import (
	"fmt"
	"strings"
)

const topologySystemPrompt = `You are a senior software architect analyzing a pull request.

Group the changed files into logical components (e.g., "Backend API", "Frontend Components", "Database Schema", "Configuration"). Every file must appear in exactly one component.

You MUST respond with ONLY a JSON object. No markdown, no explanation, no preamble.

Structure:
{
  "components": [
    {
      "name": "Component name",
      "paths": ["relative/file/path"],
      "rationale": "Why these files belong together and what to look for",
      "risk": "low|medium|high"
    }
  ],
  "strategy": "One or two sentences on how to approach the review overall"
}`

const expansionSystemPrompt = `You are a senior software architect preparing a review guide for a pull request.
Your goal is to decide whether the diffs alone give enough context to write a high-quality guide.

If you need to see actual file content (not just the diff) to understand a change, call the read_file tool with the file path and a bounded line range. For example:
- If a class hierarchy changed, read the parent type's definition.
- If complex logic calls helpers elsewhere in the same file, read that region.

Constraints:
- Only files changed in this PR can be read.
- Request one bounded region at a time; keep ranges tight.

Do not fetch content unless it is necessary. If the diffs are sufficient, reply with the single word DONE and no tool call.`

const synthesisSystemPrompt = `You are a patient senior engineer guiding a reviewer through a pull request.
Write a detailed Markdown review guide.

Instructions:
1. Deep links: link files and lines using ONLY the base anchors provided in the context.
   - To address a specific new-side line, append R<line> to a file's diff anchor.
   - Usage: "Check the session handling in [auth.py](<anchor>R20)".
   - Never invent links to files or lines that are not in the provided context.
2. Use the existing comments to avoid repeating settled discussion.
3. Do not estimate how long the review will take.
4. Present components in the given order. If you deliberately reorder them so
   foundational pieces come before their dependents, include the exact line
   <!-- order: foundational-first --> at the top of the Review Order section.

Structure:
1. **Summary**: what this PR does conceptually.
2. **Review Order**: one "### <component name>" section per component, in order, walking through its files.
3. **Watch Outs**: specific risks to check (logic holes, security, migrations).
4. **Existing Discussion**: key themes from the comments, if any.

Be specific to the files and names provided. Never be generic.`

// schemaRepairPrompt asks for one corrected response after a validation
// failure. Used at most once per stage.
func schemaRepairPrompt(parseErr error, previous string) string {
	return fmt.Sprintf(
		"Your previous response was not valid. The error was: %s\n\nFix it and respond with ONLY the requested structure.\n\nYour previous response was:\n%s",
		parseErr.Error(), previous,
	)
}

// buildManifestLines formats the file manifest for prompts.
func buildManifestLines(s *ReviewState) string {
	var b strings.Builder
	for _, f := range s.PR.Files {
		fmt.Fprintf(&b, "- %s (%s, +%d/-%d)", f.Path, f.Status, f.Additions, f.Deletions)
		if f.Status == "renamed" && f.OldPath != "" {
			fmt.Fprintf(&b, " [was %s]", f.OldPath)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// buildTopologyUser is the user prompt for the clustering invocation. The
// model sees paths and change stats, not diff bodies.
func buildTopologyUser(s *ReviewState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PR Title: %s\n", s.PR.Metadata.Title)
	if desc := strings.TrimSpace(s.PR.Metadata.Description); desc != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", desc)
	}
	fmt.Fprintf(&b, "\nChanged files:\n%s", buildManifestLines(s))
	return b.String()
}

// buildDecisionUser is the user prompt for one expansion-loop round. It
// carries the topology, diffs of the riskiest components, existing comments,
// and previously fetched content.
func (e *Engine) buildDecisionUser(s *ReviewState) string {
	budget := e.cfg.PromptTokenBudget
	var b strings.Builder

	fmt.Fprintf(&b, "PR Title: %s\n\nChanged files:\n%s\n", s.PR.Metadata.Title, buildManifestLines(s))

	b.WriteString("Topology:\n")
	for _, c := range s.Topology.Components {
		fmt.Fprintf(&b, "- %s (risk: %s): %s\n  files: %s\n",
			c.Name, c.Risk, c.Rationale, strings.Join(c.Paths, ", "))
	}

	fmt.Fprintf(&b, "\nExisting comments: %d\n", len(s.PR.Comments))

	budget -= e.tokens.count(b.String())

	// Highest-risk diffs first; stop when the budget runs out.
	b.WriteString("\nDiffs for higher-risk components:\n")
	for _, tier := range []RiskTier{RiskHigh, RiskMedium} {
		for _, c := range s.Topology.Components {
			if c.Risk != tier {
				continue
			}
			for _, path := range c.Paths {
				excerpt := e.diffExcerpt(s, path)
				cost := e.tokens.count(excerpt)
				if cost > budget {
					fmt.Fprintf(&b, "\n--- %s: diff omitted (token budget) ---\n", path)
					continue
				}
				budget -= cost
				b.WriteString(excerpt)
			}
		}
	}

	if len(s.FetchOrder) > 0 {
		b.WriteString("\nAlready fetched content (do not re-request):\n")
		for _, key := range s.FetchOrder {
			fmt.Fprintf(&b, "- %s\n", key)
		}
	}

	return b.String()
}

// buildSynthesisUser assembles the full accumulated state for the final
// roadmap invocation.
func (e *Engine) buildSynthesisUser(s *ReviewState) string {
	m := s.PR.Metadata
	budget := e.cfg.PromptTokenBudget
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", m.Title)
	if desc := strings.TrimSpace(m.Description); desc != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", desc)
	}
	fmt.Fprintf(&b, "Author: %s\nBase: %s <- Head: %s\n", m.Author, m.BaseRef, m.HeadRef)
	if m.Draft {
		b.WriteString("This PR is a draft.\n")
	}

	b.WriteString("\nComponents (in required order):\n")
	for _, c := range orderedComponents(s.Topology) {
		fmt.Fprintf(&b, "\n### %s (risk: %s)\n%s\n", c.Name, c.Risk, c.Rationale)
		for _, path := range c.Paths {
			anchor := e.fileAnchor(s, path)
			fi := s.Index.File(path)
			note := ""
			if fi != nil {
				switch {
				case fi.Binary:
					note = " (binary file)"
				case fi.Unparseable:
					note = " (diff could not be parsed; review the file directly)"
				case fi.Truncated:
					note = " (large diff, truncated)"
				}
			}
			fmt.Fprintf(&b, "- %s%s: %s\n", path, note, anchor)
		}
	}
	if s.Topology.Strategy != "" {
		fmt.Fprintf(&b, "\nSuggested strategy: %s\n", s.Topology.Strategy)
	}

	budget -= e.tokens.count(b.String())

	b.WriteString("\nDiffs:\n")
	for _, f := range s.PR.Files {
		excerpt := e.diffExcerpt(s, f.Path)
		cost := e.tokens.count(excerpt)
		if cost > budget {
			fmt.Fprintf(&b, "\n--- %s: diff omitted (token budget) ---\n", f.Path)
			continue
		}
		budget -= cost
		b.WriteString(excerpt)
	}

	if len(s.PR.Comments) > 0 {
		b.WriteString("\nExisting comments:\n")
		for _, c := range s.PR.Comments {
			loc := "(general)"
			if c.Path != "" {
				loc = fmt.Sprintf("(%s:%d)", c.Path, c.Line)
			}
			status := ""
			if c.Resolved {
				status = " [resolved]"
			}
			fmt.Fprintf(&b, "- %s %s%s: %s\n", c.Author, loc, status, c.Body)
		}
	} else {
		b.WriteString("\nExisting comments: none.\n")
	}

	if len(s.FetchOrder) > 0 {
		b.WriteString("\nFetched file content:\n")
		for _, key := range s.FetchOrder {
			content := s.Fetched[key]
			cost := e.tokens.count(content)
			if cost > budget {
				fmt.Fprintf(&b, "\n--- %s: content omitted (token budget) ---\n", key)
				continue
			}
			budget -= cost
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", key, content)
		}
	}

	return b.String()
}

// diffExcerpt renders one file's redacted diff for a prompt, or a short
// placeholder when there is nothing useful to show.
func (e *Engine) diffExcerpt(s *ReviewState, path string) string {
	fi := s.Index.File(path)
	if fi == nil {
		return ""
	}
	header := fmt.Sprintf("\n--- %s ---\n", path)
	switch {
	case fi.Binary:
		return header + "(binary file, no diff)\n"
	case fi.Unparseable:
		return header + "(diff could not be parsed)\n"
	}
	for _, f := range s.PR.Files {
		if f.Path == path {
			body := f.Patch
			if fi.Truncated {
				body += "\n... (diff truncated)"
			}
			return header + e.redactText(body) + "\n"
		}
	}
	return ""
}

// fileAnchor returns the base PR-diff deep link for a manifest path.
func (e *Engine) fileAnchor(s *ReviewState, path string) string {
	return diffAnchorFor(s, path)
}
