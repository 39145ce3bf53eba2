package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/roadmap/internal/pipeline"
)

const defaultAPIURL = "https://api.github.com"

// Options tunes a Client beyond its environment-derived defaults.
type Options struct {
	// Limiter throttles all requests. Share one limiter across concurrent
	// analyses so the API budget is global, not per-run.
	Limiter *rate.Limiter
	// FetchRetries bounds retry attempts for content fetches.
	FetchRetries int
	// FetchTimeout is the per-request deadline for content fetches.
	FetchTimeout time.Duration
}

// Client provides access to the GitHub REST API.
type Client struct {
	token        string
	apiURL       string
	httpCli      *http.Client
	limiter      *rate.Limiter
	fetchRetries int
	fetchTimeout time.Duration
}

// NewClient creates a new GitHub client. Requires GITHUB_TOKEN env var.
func NewClient(opts Options) (*Client, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN environment variable is not set")
	}

	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	retries := opts.FetchRetries
	if retries <= 0 {
		retries = 3
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}

	return &Client{
		token:        token,
		apiURL:       strings.TrimRight(apiURL, "/"),
		httpCli:      &http.Client{Timeout: 60 * time.Second},
		limiter:      opts.Limiter,
		fetchRetries: retries,
		fetchTimeout: fetchTimeout,
	}, nil
}

// get issues one throttled GET and returns the body for 200 responses.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == 404:
		return nil, fmt.Errorf("not found: %s", url)
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return nil, fmt.Errorf("authentication failed (status %d): %s", resp.StatusCode, string(body))
	case resp.StatusCode != 200:
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// RangeFetcher binds a Client to one PR so it satisfies the pipeline's
// content-fetch interface.
type RangeFetcher struct {
	c  *Client
	id Identifier
}

// RangeFetcher returns a fetcher scoped to id's repository.
func (c *Client) RangeFetcher(id Identifier) *RangeFetcher {
	return &RangeFetcher{c: c, id: id}
}

// FetchFileRange reads lines [startLine, endLine] of a file at ref. Timeouts
// and transient errors are retried with backoff up to the configured budget;
// a 404 is not retried.
func (f *RangeFetcher) FetchFileRange(ctx context.Context, path, ref string, startLine, endLine int) (string, error) {
	c := f.c
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.apiURL, f.id.Owner, f.id.Repo, escapePath(path), url.QueryEscape(ref))

	var body []byte
	var err error
	for attempt := 0; attempt < c.fetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		body, err = c.get(reqCtx, u, "application/vnd.github.raw+json")
		cancel()
		if err == nil {
			return sliceLines(string(body), startLine, endLine), nil
		}
		if strings.Contains(err.Error(), "not found") || ctx.Err() != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", c.fetchRetries, err)
}

// sliceLines returns the 1-based inclusive line range of text, clamped to the
// file's actual length.
func sliceLines(text string, start, end int) string {
	lines := strings.Split(text, "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) || end < start {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// escapePath URL-escapes each path segment while keeping the separators.
func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// ingestErr wraps an ingestion failure with the PR identifier.
func ingestErr(id Identifier, err error) error {
	return &pipeline.IngestionError{Identifier: id.String(), Err: err}
}
