// Package enrich adds LLM-generated descriptions to processed documents.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
)

const (
	// DefaultMaxTokens is the maximum content length before truncation (in tokens).
	DefaultMaxTokens = 16000
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
)

// Summary contains LLM-generated metadata for a document.
type Summary struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Truncator shortens text to a token budget.
type Truncator interface {
	Truncate(text string, maxTokens int) string
}

// Config configures a Summarizer.
type Config struct {
	Model     string
	MaxTokens int
	Truncator Truncator // Nil estimates 4 characters per token
}

// Summarizer produces document summaries through a chat completion.
type Summarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	truncator Truncator
	logger    *slog.Logger
}

// NewSummarizer creates a summarizer with the given OpenAI client.
func NewSummarizer(client *openai.Client, cfg Config, logger *slog.Logger) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		truncator: cfg.Truncator,
		logger:    logger,
	}
}

// Summarize analyzes document content and produces a summary and keyword list.
func (s *Summarizer) Summarize(ctx context.Context, filename, content string) (*Summary, error) {
	truncated := s.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this document and provide:
1. A concise summary (1-2 sentences) capturing the main topic and key points
2. A list of up to 10 keywords or key terms a reader would search for

Document name: %s

Document content:
%s

Respond in JSON format:
{"summary": "Brief description of what this document covers", "keywords": ["keyword1", "keyword2"]}`, filename, truncated)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(s.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	return parseSummary(resp.Choices[0].Message.Content)
}

func parseSummary(content string) (*Summary, error) {
	var summary Summary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if summary.Keywords == nil {
		summary.Keywords = []string{}
	}
	return &summary, nil
}

// truncateContent truncates content to fit within token limits.
func (s *Summarizer) truncateContent(content string) string {
	if s.truncator != nil {
		return s.truncator.Truncate(content, s.maxTokens)
	}

	// Rough estimate: 1 token ≈ 4 characters
	maxChars := s.maxTokens * 4
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	s.logger.Warn("Truncating content for summary",
		"from_chars", len(runes),
		"to_chars", maxChars,
		"max_tokens", s.maxTokens,
	)
	return string(runes[:maxChars])
}
