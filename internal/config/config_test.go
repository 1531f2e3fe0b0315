package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every recognized variable so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	for _, ev := range envVars {
		t.Setenv(ev.name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 384, cfg.EmbeddingDimension)
	assert.Equal(t, 5, cfg.SearchLimit)
	assert.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, []string{".pdf", ".txt", ".md", ".docx", ".doc"}, cfg.AllowedExtensions)
	assert.False(t, cfg.SkipVectorModel)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database_driver: memory
chunk_size: 500
chunk_overlap: 50
allowed_extensions: [".md", "TXT"]
log_format: JSON
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, []string{".md", ".txt"}, cfg.AllowedExtensions)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 384, cfg.EmbeddingDimension, "unset keys keep defaults")
}

func TestLoad_ConfigFileEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfig(t, "search_limit: 9\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.SearchLimit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "chunk_size: 500\nsearch_limit: 3\n")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("SKIP_VECTOR_MODEL", "true")
	t.Setenv("SIMILARITY_THRESHOLD", "0.25")
	t.Setenv("ALLOWED_EXTENSIONS", ".pdf, .md")
	t.Setenv("MAX_FILE_SIZE", "2048")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.SearchLimit)
	assert.True(t, cfg.SkipVectorModel)
	assert.InDelta(t, 0.25, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, []string{".pdf", ".md"}, cfg.AllowedExtensions)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "big")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"overlap not below size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "ChunkOverlap"},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, "ChunkOverlap"},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DatabaseDriver"},
		{"postgres without url", func(c *Config) {
			c.DatabaseDriver = "postgres"
			c.DatabaseURL = ""
		}, "DatabaseURL"},
		{"threshold out of range", func(c *Config) { c.SimilarityThreshold = 1.5 }, "SimilarityThreshold"},
		{"bad base url", func(c *Config) { c.EmbeddingBaseURL = "not a url" }, "EmbeddingBaseURL"},
		{"extension without dot", func(c *Config) { c.AllowedExtensions = []string{"pdf"} }, "AllowedExtensions"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"server mode", func(c *Config) { c.ServerMode = "grpc" }, "ServerMode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	mem := Default()
	mem.DatabaseDriver = "memory"
	mem.DatabaseURL = ""
	assert.NoError(t, mem.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "document_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"document_id":7`)

	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
}
