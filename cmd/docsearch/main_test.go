package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLI writes a config file pointing at a scratch SQLite database and
// clears the environment variables that would override it.
func setupCLI(t *testing.T) (configPath, dir string) {
	t.Helper()
	for _, name := range []string{
		"CONFIG_FILE", "DATABASE_DRIVER", "DATABASE_URL", "UPLOAD_DIR",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "OPENAI_API_KEY", "EMBEDDING_BASE_URL",
		"SEARCH_LIMIT", "SIMILARITY_THRESHOLD", "EMBEDDING_DIMENSION",
		"TOKEN_COUNTS", "SUMMARIZE", "LOG_LEVEL", "ALLOWED_EXTENSIONS",
	} {
		t.Setenv(name, "")
	}

	dir = t.TempDir()
	configPath = filepath.Join(dir, "docsearch.yaml")
	yaml := "database_driver: sqlite\n" +
		"database_url: " + filepath.Join(dir, "docsearch.db") + "\n" +
		"upload_dir: " + filepath.Join(dir, "uploads") + "\n" +
		"chunk_size: 15\n" +
		"chunk_overlap: 5\n" +
		"log_level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, dir
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--config", configPath}, args...))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Lifecycle(t *testing.T) {
	configPath, dir := setupCLI(t)
	file := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(file, []byte("Hello world. This is a test."), 0o644))

	out, err := runCLI(t, configPath, "ingest", "--owner", "alice", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Document 1: hello.txt (3 chunks)")

	out, err = runCLI(t, configPath, "list", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "hello.txt")
	assert.Contains(t, out, "1 of 1 documents")

	out, err = runCLI(t, configPath, "list", "--owner", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0 documents")

	out, err = runCLI(t, configPath, "search", "Hello", "world.")
	require.NoError(t, err)
	assert.Contains(t, out, "1. 1.0000  hello.txt #0 (document 1)")
	assert.Contains(t, out, "   Hello world.")

	out, err = runCLI(t, configPath, "get", "--chunks", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Chunks:   3")
	assert.Contains(t, out, "[0] Hello world.")

	out, err = runCLI(t, configPath, "process", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Document 1 processed: 3 chunks")

	out, err = runCLI(t, configPath, "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Document 1 deleted")

	_, err = runCLI(t, configPath, "delete", "1")
	assert.ErrorContains(t, err, "not found")

	out, err = runCLI(t, configPath, "search", "Hello world.")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching chunks found.")
}

func TestCLI_IngestWithoutProcessing(t *testing.T) {
	configPath, dir := setupCLI(t)
	file := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(file, []byte("# Notes\n\nSome notes."), 0o644))

	out, err := runCLI(t, configPath, "ingest", "--no-process", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Document 1: notes.md (pending)")

	out, err = runCLI(t, configPath, "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   pending")
	assert.NotContains(t, out, "Chunks:")
}

func TestCLI_IngestRejectsUnsupported(t *testing.T) {
	configPath, dir := setupCLI(t)
	file := filepath.Join(dir, "tool.exe")
	require.NoError(t, os.WriteFile(file, []byte("MZ"), 0o644))

	out, err := runCLI(t, configPath, "ingest", file, filepath.Join(dir, "missing.txt"))
	assert.ErrorContains(t, err, "2 of 2 files failed")
	assert.Contains(t, out, "tool.exe")
	assert.Contains(t, out, "missing.txt")
}

func TestCLI_InvalidID(t *testing.T) {
	configPath, _ := setupCLI(t)

	for _, cmd := range []string{"get", "process", "delete"} {
		_, err := runCLI(t, configPath, cmd, "abc")
		assert.ErrorContains(t, err, `invalid document id "abc"`, cmd)
	}

	_, err := runCLI(t, configPath, "get", "42")
	assert.ErrorContains(t, err, "not found")
}

func TestCLI_Model(t *testing.T) {
	configPath, _ := setupCLI(t)

	out, err := runCLI(t, configPath, "model")
	require.NoError(t, err)
	assert.Contains(t, out, "Dimension: 384")
	assert.Contains(t, out, "Loaded:    false")
	assert.Contains(t, out, "State:     fallback")

	out, err = runCLI(t, configPath, "model", "--reload")
	require.NoError(t, err)
	assert.Contains(t, out, "State:     fallback")
}

func TestCLI_ImportGitHubRejectsBadSource(t *testing.T) {
	configPath, _ := setupCLI(t)

	_, err := runCLI(t, configPath, "import-github", "not-a-repo")
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	for _, bad := range []string{"", "0", "-3", "x1"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}
