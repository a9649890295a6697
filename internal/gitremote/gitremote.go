// Package gitremote answers "what is the remote at right now" questions
// against the GitHub API without touching a local clone. Callers fall back
// to fetching when the API is unavailable or the URL is not GitHub-shaped.
package gitremote

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"
)

// DefaultRateLimit bounds API calls per second. Authenticated GitHub allows
// 5000/hour; staying near 1/s leaves headroom for other consumers of the
// same token.
const DefaultRateLimit = 1

// Client wraps the GitHub API client with rate limiting.
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
}

// NewClient builds a rate-limited GitHub client. An empty token yields an
// unauthenticated client, which is enough for public-repo head checks.
func NewClient(token string, rateLimit int) *Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
	}
}

// DefaultBranch reports the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, owner, name string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	repo, _, err := c.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("fetch repository: %w", err)
	}
	return repo.GetDefaultBranch(), nil
}

// BranchHead reports the SHA of the newest commit on a branch. It lets the
// update flow skip a full fetch when nothing moved.
func (c *Client) BranchHead(ctx context.Context, owner, name, branch string) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	opts := &github.CommitsListOptions{
		SHA: branch,
		ListOptions: github.ListOptions{
			PerPage: 1,
		},
	}
	commits, _, err := c.client.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		return "", fmt.Errorf("fetch branch head: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("branch %s has no commits", branch)
	}
	return commits[0].GetSHA(), nil
}

var (
	httpsURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+?)(?:\.git)?/?$`)
	sshURLPattern   = regexp.MustCompile(`^(?:ssh://)?git@[^:/]+[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)
	gitURLPattern   = regexp.MustCompile(`^git://[^/]+/([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// ParseRepoURL extracts owner and repository name from a remote URL.
// Supported forms:
//
//	https://github.com/owner/repo(.git)
//	git@github.com:owner/repo(.git)
//	git://github.com/owner/repo(.git)
func ParseRepoURL(remoteURL string) (owner, name string, err error) {
	for _, pattern := range []*regexp.Regexp{httpsURLPattern, sshURLPattern, gitURLPattern} {
		if matches := pattern.FindStringSubmatch(remoteURL); len(matches) == 3 {
			return matches[1], matches[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized git URL format: %s", remoteURL)
}

// RepoNameFromURL derives the repository name used as the metadata primary
// key. Hosted URLs use the repo component; anything else (local paths
// included) falls back to the trailing path element without its .git suffix.
func RepoNameFromURL(remoteURL string) string {
	if _, name, err := ParseRepoURL(remoteURL); err == nil {
		return name
	}
	trimmed := strings.TrimSuffix(strings.TrimRight(remoteURL, "/"), ".git")
	return path.Base(strings.ReplaceAll(trimmed, "\\", "/"))
}
