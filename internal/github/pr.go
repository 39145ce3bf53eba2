package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dshills/roadmap/internal/pipeline"
)

const jsonAccept = "application/vnd.github.v3+json"

type prResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Draft  bool   `json:"draft"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Base struct {
		Ref  string `json:"ref"`
		Repo struct {
			HTMLURL string `json:"html_url"`
		} `json:"repo"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
}

type fileResponse struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Patch            string `json:"patch"`
}

type issueCommentResponse struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

type reviewCommentResponse struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	Path string `json:"path"`
	Line int    `json:"line"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	OriginalLine int `json:"original_line"`
	// Position is null for comments on outdated diffs.
	Position *int `json:"position"`
}

// GetPRContext ingests everything the pipeline needs for one PR: metadata,
// the file manifest with patches, and both kinds of discussion comments.
func (c *Client) GetPRContext(ctx context.Context, id Identifier) (pipeline.PRContext, error) {
	var out pipeline.PRContext

	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.apiURL, id.Owner, id.Repo, id.Number), jsonAccept)
	if err != nil {
		return out, ingestErr(id, err)
	}
	var pr prResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return out, ingestErr(id, fmt.Errorf("parsing PR metadata: %w", err))
	}

	repoURL := pr.Base.Repo.HTMLURL
	if repoURL == "" {
		repoURL = fmt.Sprintf("https://github.com/%s/%s", id.Owner, id.Repo)
	}
	out.Metadata = pipeline.Metadata{
		Number:      pr.Number,
		Title:       pr.Title,
		Description: pr.Body,
		Author:      pr.User.Login,
		BaseRef:     pr.Base.Ref,
		HeadRef:     pr.Head.Ref,
		HeadSHA:     pr.Head.SHA,
		RepoURL:     repoURL,
		Draft:       pr.Draft,
	}

	files, err := c.listFiles(ctx, id)
	if err != nil {
		return out, ingestErr(id, err)
	}
	out.Files = files

	comments, err := c.listComments(ctx, id)
	if err != nil {
		return out, ingestErr(id, err)
	}
	out.Comments = comments

	return out, nil
}

// listFiles pages through the PR file manifest.
func (c *Client) listFiles(ctx context.Context, id Identifier) ([]pipeline.FileChange, error) {
	var out []pipeline.FileChange
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100&page=%d",
			c.apiURL, id.Owner, id.Repo, id.Number, page)
		body, err := c.get(ctx, u, jsonAccept)
		if err != nil {
			return nil, fmt.Errorf("listing files: %w", err)
		}
		var files []fileResponse
		if err := json.Unmarshal(body, &files); err != nil {
			return nil, fmt.Errorf("parsing file list: %w", err)
		}
		for _, f := range files {
			out = append(out, pipeline.FileChange{
				Path:      f.Filename,
				OldPath:   f.PreviousFilename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
				Patch:     f.Patch,
			})
		}
		if len(files) < 100 {
			return out, nil
		}
	}
}

// listComments merges issue-level and review (inline) comments.
func (c *Client) listComments(ctx context.Context, id Identifier) ([]pipeline.Comment, error) {
	var out []pipeline.Comment

	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100",
		c.apiURL, id.Owner, id.Repo, id.Number), jsonAccept)
	if err != nil {
		return nil, fmt.Errorf("listing issue comments: %w", err)
	}
	var issue []issueCommentResponse
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parsing issue comments: %w", err)
	}
	for _, ic := range issue {
		out = append(out, pipeline.Comment{ID: ic.ID, Author: ic.User.Login, Body: ic.Body})
	}

	body, err = c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/pulls/%d/comments?per_page=100",
		c.apiURL, id.Owner, id.Repo, id.Number), jsonAccept)
	if err != nil {
		return nil, fmt.Errorf("listing review comments: %w", err)
	}
	var review []reviewCommentResponse
	if err := json.Unmarshal(body, &review); err != nil {
		return nil, fmt.Errorf("parsing review comments: %w", err)
	}
	for _, rc := range review {
		line := rc.Line
		if line == 0 {
			line = rc.OriginalLine
		}
		out = append(out, pipeline.Comment{
			ID:     rc.ID,
			Author: rc.User.Login,
			Body:   rc.Body,
			Path:   rc.Path,
			Line:   line,
			// Outdated threads read as settled discussion.
			Resolved: rc.Position == nil,
		})
	}

	return out, nil
}

// PostComment posts body as an issue comment on the PR.
func (c *Client) PostComment(ctx context.Context, id Identifier, commentBody string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(map[string]string{"body": commentBody})
	if err != nil {
		return fmt.Errorf("marshaling comment: %w", err)
	}

	u := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.apiURL, id.Owner, id.Repo, id.Number)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", jsonAccept)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("posting comment: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// CheckWriteAccess reports whether the token can push to (and therefore
// comment with elevated standing on) the repository.
func (c *Client) CheckWriteAccess(ctx context.Context, id Identifier) (bool, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s", c.apiURL, id.Owner, id.Repo), jsonAccept)
	if err != nil {
		return false, err
	}
	var repo struct {
		Permissions struct {
			Push bool `json:"push"`
		} `json:"permissions"`
	}
	if err := json.Unmarshal(body, &repo); err != nil {
		return false, fmt.Errorf("parsing repository: %w", err)
	}
	return repo.Permissions.Push, nil
}
