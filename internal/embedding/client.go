package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoCredentials is returned when neither an API key nor a custom base URL is configured.
var ErrNoCredentials = errors.New("no embedding API key or base URL configured")

// ClientConfig holds connection settings for an OpenAI-compatible API.
type ClientConfig struct {
	APIKey  string
	BaseURL string // Empty uses api.openai.com; set for Ollama or other compatible servers
}

// Client wraps the OpenAI client shared by embedding and enrichment.
type Client struct {
	client *openai.Client
}

// NewClient creates a client from cfg.
// Local servers usually need no key, so a BaseURL alone is accepted.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrNoCredentials
	}

	// Rate limits are retried by the backend with its own backoff.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., enrichment).
func (c *Client) Client() *openai.Client {
	return c.client
}
