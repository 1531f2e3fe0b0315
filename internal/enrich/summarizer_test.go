package enrich

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestParseSummary verifies JSON parsing of a valid response.
func TestParseSummary(t *testing.T) {
	summary, err := parseSummary(`{"summary": "Test summary", "keywords": ["alpha", "beta"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Test summary", summary.Summary)
	assert.Equal(t, []string{"alpha", "beta"}, summary.Keywords)
}

// TestParseSummary_MissingKeywords verifies keywords default to an empty list.
func TestParseSummary_MissingKeywords(t *testing.T) {
	summary, err := parseSummary(`{"summary": "Only a summary"}`)
	require.NoError(t, err)
	assert.NotNil(t, summary.Keywords)
	assert.Empty(t, summary.Keywords)
}

// TestParseSummary_Invalid verifies malformed responses are errors.
func TestParseSummary_Invalid(t *testing.T) {
	_, err := parseSummary("not json")
	assert.Error(t, err)
}

// TestTruncateContent verifies truncation for very long content.
func TestTruncateContent(t *testing.T) {
	s := NewSummarizer(nil, Config{}, quietLogger())
	longContent := strings.Repeat("This is a test content. ", 4000) // ~100k chars

	truncated := s.truncateContent(longContent)
	assert.Len(t, truncated, DefaultMaxTokens*4)
	assert.True(t, strings.HasPrefix(longContent, truncated))
}

// TestTruncateContent_Short verifies short content is not truncated.
func TestTruncateContent_Short(t *testing.T) {
	s := NewSummarizer(nil, Config{}, quietLogger())
	shortContent := strings.Repeat("Short. ", 140)

	assert.Equal(t, shortContent, s.truncateContent(shortContent))
}

// TestTruncateContent_MultiByte verifies cuts never split a character.
func TestTruncateContent_MultiByte(t *testing.T) {
	s := NewSummarizer(nil, Config{MaxTokens: 1}, quietLogger())

	assert.Equal(t, "文档处理", s.truncateContent("文档处理服务"))
}

type wordTruncator struct{}

func (wordTruncator) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return strings.Join(words, " ")
}

// TestTruncateContent_Truncator verifies a configured truncator takes precedence.
func TestTruncateContent_Truncator(t *testing.T) {
	s := NewSummarizer(nil, Config{MaxTokens: 3, Truncator: wordTruncator{}}, quietLogger())

	assert.Equal(t, "one two three", s.truncateContent("one two three four five"))
}

func newChatServer(t *testing.T, content string, status int) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel.Store(req.Model)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &gotModel
}

func newTestClient(baseURL string) *openai.Client {
	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(baseURL+"/"),
		option.WithMaxRetries(0),
	)
	return &client
}

// TestSummarize verifies a full round trip against a chat completion endpoint.
func TestSummarize(t *testing.T) {
	srv, gotModel := newChatServer(t, `{"summary":"Covers setup.","keywords":["install","setup"]}`, http.StatusOK)
	s := NewSummarizer(newTestClient(srv.URL), Config{Model: "test-model"}, quietLogger())

	summary, err := s.Summarize(context.Background(), "guide.md", "Install the tool, then run setup.")
	require.NoError(t, err)
	assert.Equal(t, "Covers setup.", summary.Summary)
	assert.Equal(t, []string{"install", "setup"}, summary.Keywords)
	assert.Equal(t, "test-model", gotModel.Load())
}

// TestSummarize_ServerError verifies API failures are returned.
func TestSummarize_ServerError(t *testing.T) {
	srv, _ := newChatServer(t, "", http.StatusInternalServerError)
	s := NewSummarizer(newTestClient(srv.URL), Config{}, quietLogger())

	_, err := s.Summarize(context.Background(), "guide.md", "text")
	assert.Error(t, err)
}
