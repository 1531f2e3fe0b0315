// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	DatabaseDriver string `yaml:"database_driver" validate:"oneof=sqlite postgres memory"`
	DatabaseURL    string `yaml:"database_url" validate:"required_unless=DatabaseDriver memory"`
	UploadDir      string `yaml:"upload_dir" validate:"required"`

	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`

	EmbeddingDimension int    `yaml:"embedding_dimension" validate:"gt=0"`
	VectorModel        string `yaml:"vector_model"`
	EmbeddingBaseURL   string `yaml:"embedding_base_url" validate:"omitempty,url"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	SkipVectorModel    bool   `yaml:"skip_vector_model"`

	SearchLimit         int     `yaml:"search_limit" validate:"gt=0"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=-1,lte=1"`

	MaxFileSize       int64    `yaml:"max_file_size" validate:"gt=0"`
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1,dive,startswith=."`
	Workers           int      `yaml:"workers" validate:"gte=1"`
	WatchDir          string   `yaml:"watch_dir"`

	HTTPAddr   string `yaml:"http_addr" validate:"required"`
	ServerMode string `yaml:"server_mode" validate:"oneof=stdio http"`
	Port       string `yaml:"port" validate:"required,numeric"`

	TokenCounts  bool   `yaml:"token_counts"`
	Summarize    bool   `yaml:"summarize"`
	SummaryModel string `yaml:"summary_model"`
	GitHubToken  string `yaml:"github_token"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabaseDriver:      "sqlite",
		DatabaseURL:         "docsearch.db",
		UploadDir:           "uploads",
		ChunkSize:           1000,
		ChunkOverlap:        200,
		EmbeddingDimension:  384,
		SearchLimit:         5,
		SimilarityThreshold: 0.7,
		MaxFileSize:         10 << 20,
		AllowedExtensions:   []string{".pdf", ".txt", ".md", ".docx", ".doc"},
		Workers:             2,
		HTTPAddr:            ":8000",
		ServerMode:          "stdio",
		Port:                "8080",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load builds the configuration. path names an optional YAML file; when empty,
// CONFIG_FILE is consulted. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	normalize(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func normalize(cfg *Config) {
	exts := cfg.AllowedExtensions[:0:0]
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	cfg.AllowedExtensions = exts
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
}

type envVar struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(cfg) = i
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

var envVars = []envVar{
	{"DATABASE_DRIVER", str(func(c *Config) *string { return &c.DatabaseDriver })},
	{"DATABASE_URL", str(func(c *Config) *string { return &c.DatabaseURL })},
	{"UPLOAD_DIR", str(func(c *Config) *string { return &c.UploadDir })},
	{"CHUNK_SIZE", integer(func(c *Config) *int { return &c.ChunkSize })},
	{"CHUNK_OVERLAP", integer(func(c *Config) *int { return &c.ChunkOverlap })},
	{"EMBEDDING_DIMENSION", integer(func(c *Config) *int { return &c.EmbeddingDimension })},
	{"VECTOR_MODEL", str(func(c *Config) *string { return &c.VectorModel })},
	{"EMBEDDING_BASE_URL", str(func(c *Config) *string { return &c.EmbeddingBaseURL })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.OpenAIAPIKey })},
	{"SKIP_VECTOR_MODEL", boolean(func(c *Config) *bool { return &c.SkipVectorModel })},
	{"SEARCH_LIMIT", integer(func(c *Config) *int { return &c.SearchLimit })},
	{"SIMILARITY_THRESHOLD", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.SimilarityThreshold = f
		return nil
	}},
	{"MAX_FILE_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.MaxFileSize = n
		return nil
	}},
	{"ALLOWED_EXTENSIONS", func(c *Config, v string) error {
		c.AllowedExtensions = strings.Split(v, ",")
		return nil
	}},
	{"WORKERS", integer(func(c *Config) *int { return &c.Workers })},
	{"WATCH_DIR", str(func(c *Config) *string { return &c.WatchDir })},
	{"HTTP_ADDR", str(func(c *Config) *string { return &c.HTTPAddr })},
	{"SERVER_MODE", str(func(c *Config) *string { return &c.ServerMode })},
	{"PORT", str(func(c *Config) *string { return &c.Port })},
	{"TOKEN_COUNTS", boolean(func(c *Config) *bool { return &c.TokenCounts })},
	{"SUMMARIZE", boolean(func(c *Config) *bool { return &c.Summarize })},
	{"SUMMARY_MODEL", str(func(c *Config) *string { return &c.SummaryModel })},
	{"GITHUB_TOKEN", str(func(c *Config) *string { return &c.GitHubToken })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.LogFormat })},
}

// applyEnv overrides cfg with every non-empty variable in envVars.
func applyEnv(cfg *Config) error {
	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.apply(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("environment variable %s: %w", ev.name, err)
		}
	}
	return nil
}
