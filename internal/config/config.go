package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort    string
	LogLevel    string
	JWTSecret   string
	DatabaseURL string
	CORSOrigins []string

	ScratchBackend string
	ScratchDir     string
	AwsRegion      string
	AwsAccessKey   string
	AwsSecretKey   string
	BucketName     string

	EmbedProvider string
	EmbedURL      string
	EmbedModel    string
	GeminiAPIKey  string

	DefaultModel     string
	LLMTimeout       time.Duration
	SearchTimeout    time.Duration
	RetrievalTimeout time.Duration

	ManifestPath string
	AssetURL     string

	Pipeline Pipeline
}

// Pipeline holds the retrieval and prompt tuning knobs. They can be
// overridden from the YAML file named by CONFIG_FILE.
type Pipeline struct {
	ChunkSize             int `yaml:"chunk_size"`
	ChunkOverlap          int `yaml:"chunk_overlap"`
	TopK                  int `yaml:"top_k"`
	SearchTopN            int `yaml:"search_top_n"`
	MaxRawAttachmentChars int `yaml:"max_raw_attachment_chars"`
}

// defaultEmbedModels is keyed by EMBED_PROVIDER.
var defaultEmbedModels = map[string]string{
	"ollama": "nomic-embed-text",
	"gemini": "text-embedding-004",
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		ChunkSize:             1000,
		ChunkOverlap:          200,
		TopK:                  5,
		SearchTopN:            5,
		MaxRawAttachmentChars: 12000,
	}
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		DatabaseURL: getEnv("DATABASE_URL", "llmwui.db"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		ScratchBackend: getEnv("SCRATCH_BACKEND", "local"),
		ScratchDir:     getEnv("SCRATCH_DIR", "./data/scratch"),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		BucketName:     getEnv("BUCKET_NAME", "llmwui-scratch"),

		EmbedProvider: getEnv("EMBED_PROVIDER", "ollama"),
		EmbedURL:      getEnv("EMBED_URL", "http://localhost:11434"),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),

		DefaultModel:     getEnv("DEFAULT_MODEL", "llama3"),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", 5*time.Minute),
		SearchTimeout:    getEnvAsDuration("SEARCH_TIMEOUT", 10*time.Second),
		RetrievalTimeout: getEnvAsDuration("RETRIEVAL_TIMEOUT", 30*time.Second),

		ManifestPath: getEnv("MANIFEST_PATH", ""),
		AssetURL:     getEnv("ASSET_URL", ""),

		Pipeline: DefaultPipeline(),
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModels[cfg.EmbedProvider]
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.Pipeline.overlay(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL cannot be empty")
	}
	switch c.ScratchBackend {
	case "local":
		if c.ScratchDir == "" {
			return errors.New("SCRATCH_DIR cannot be empty")
		}
	case "s3":
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" || c.BucketName == "" {
			return errors.New("SCRATCH_BACKEND=s3 needs AWS_ACCESS_KEY, AWS_SECRET_KEY and BUCKET_NAME")
		}
	default:
		return fmt.Errorf("unknown SCRATCH_BACKEND %q", c.ScratchBackend)
	}
	switch c.EmbedProvider {
	case "ollama":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("EMBED_PROVIDER=gemini needs GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}
	return c.Pipeline.Validate()
}

func (p Pipeline) Validate() error {
	if p.ChunkSize <= 0 {
		return errors.New("chunk_size must be > 0")
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return errors.New("chunk_overlap must be >= 0 and smaller than chunk_size")
	}
	if p.TopK <= 0 || p.SearchTopN <= 0 {
		return errors.New("top_k and search_top_n must be > 0")
	}
	return nil
}

// IsPostgres reports whether DatabaseURL points at Postgres rather than a sqlite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// overlay applies the non-zero values of a YAML file on top of p.
func (p *Pipeline) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Pipeline
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.ChunkSize != 0 {
		p.ChunkSize = file.ChunkSize
	}
	if file.ChunkOverlap != 0 {
		p.ChunkOverlap = file.ChunkOverlap
	}
	if file.TopK != 0 {
		p.TopK = file.TopK
	}
	if file.SearchTopN != 0 {
		p.SearchTopN = file.SearchTopN
	}
	if file.MaxRawAttachmentChars != 0 {
		p.MaxRawAttachmentChars = file.MaxRawAttachmentChars
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	// Bare integers are seconds.
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration, using default", "key", key, "value", valueStr, "default", defaultValue)
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
