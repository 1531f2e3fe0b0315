package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// Option configures a Client.
type Option func(*github.Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(base string) Option {
	return func(c *github.Client) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.BaseURL = u
		return nil
	}
}

// NewClient creates a GitHub client that waits out primary and secondary rate limits.
// An empty token gives an unauthenticated client (60 requests per hour).
func NewClient(token string, opts ...Option) (*Client, error) {
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}
	for _, opt := range opts {
		if err := opt(ghClient); err != nil {
			return nil, err
		}
	}
	return &Client{Client: ghClient}, nil
}
