// Package config loads roomload settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all roomload configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OllamaConfig points at the local model server.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	EmbedModel string `yaml:"embed_model"`
	LLMModel   string `yaml:"llm_model"`
	Timeout    string `yaml:"timeout"`
	// EmbedBatchSize caps the chunks sent per embedding request.
	EmbedBatchSize int `yaml:"embed_batch_size"`
	// EmbedDimensions pins the vector length. 0 accepts the model's.
	EmbedDimensions int `yaml:"embed_dimensions"`
}

// ClassifierConfig selects the classification backend.
type ClassifierConfig struct {
	Provider string `yaml:"provider"` // llm, http
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
}

// RetrievalConfig selects where classification context comes from.
type RetrievalConfig struct {
	Provider      string   `yaml:"provider"` // knowledge, http, none
	Endpoint      string   `yaml:"endpoint"`
	Timeout       string   `yaml:"timeout"`
	TopK          int      `yaml:"top_k"`
	MinScore      float64  `yaml:"min_score"`
	Topics        []string `yaml:"topics"`
	CacheCapacity int      `yaml:"cache_capacity"`
}

// KnowledgeConfig configures the local reference-material store.
type KnowledgeConfig struct {
	Store        string `yaml:"store"` // sqlite, memory
	DataDir      string `yaml:"data_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	ParserURL    string `yaml:"parser_url"`
}

// PipelineConfig tunes the analysis.
type PipelineConfig struct {
	CoincidentFactor float64 `yaml:"coincident_factor"`
	// CoincidentMeterCount derives the coincident factor from the number of
	// service meters when positive.
	CoincidentMeterCount  int     `yaml:"coincident_meter_count"`
	LabelTolerance        float64 `yaml:"label_tolerance"`
	RetryZeroRates        bool    `yaml:"retry_zero_rates"`
	IncludeClimateControl bool    `yaml:"include_climate_control"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Dir      string `yaml:"dir"`
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    "30s",
			WriteTimeout:   "120s",
			MaxUploadBytes: 50 << 20,
			AllowedOrigins: []string{"*"},
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			LLMModel:   "llama3.2",
			Timeout:    "120s",

			EmbedBatchSize: 16,
		},
		Classifier: ClassifierConfig{
			Provider: "llm",
			Timeout:  "90s",
		},
		Retrieval: RetrievalConfig{
			Provider:      "knowledge",
			Timeout:       "15s",
			TopK:          5,
			MinScore:      0.3,
			CacheCapacity: 256,
		},
		Knowledge: KnowledgeConfig{
			Store:        "sqlite",
			DataDir:      "./data",
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Pipeline: PipelineConfig{
			CoincidentFactor: 1.0,
			LabelTolerance:   500,
			RetryZeroRates:   true,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults; an empty path skips the
// file entirely.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Addr = getEnv("ROOMLOAD_ADDR", c.Server.Addr)
	c.Ollama.BaseURL = getEnv("ROOMLOAD_OLLAMA_URL", c.Ollama.BaseURL)
	c.Ollama.EmbedModel = getEnv("ROOMLOAD_EMBED_MODEL", c.Ollama.EmbedModel)
	c.Ollama.LLMModel = getEnv("ROOMLOAD_LLM_MODEL", c.Ollama.LLMModel)
	c.Ollama.EmbedBatchSize = getEnvAsInt("ROOMLOAD_EMBED_BATCH_SIZE", c.Ollama.EmbedBatchSize)

	c.Classifier.Provider = getEnv("ROOMLOAD_CLASSIFIER", c.Classifier.Provider)
	c.Classifier.Endpoint = getEnv("ROOMLOAD_CLASSIFIER_URL", c.Classifier.Endpoint)
	c.Classifier.APIKey = getEnv("ROOMLOAD_CLASSIFIER_API_KEY", c.Classifier.APIKey)

	c.Retrieval.Provider = getEnv("ROOMLOAD_RETRIEVAL", c.Retrieval.Provider)
	c.Retrieval.Endpoint = getEnv("ROOMLOAD_RETRIEVAL_URL", c.Retrieval.Endpoint)
	c.Retrieval.TopK = getEnvAsInt("ROOMLOAD_TOP_K", c.Retrieval.TopK)

	c.Knowledge.DataDir = getEnv("ROOMLOAD_DATA_DIR", c.Knowledge.DataDir)
	c.Knowledge.ParserURL = getEnv("ROOMLOAD_PARSER_URL", c.Knowledge.ParserURL)

	c.Pipeline.CoincidentFactor = getEnvAsFloat("ROOMLOAD_COINCIDENT_FACTOR", c.Pipeline.CoincidentFactor)
	c.Pipeline.CoincidentMeterCount = getEnvAsInt("ROOMLOAD_METER_COUNT", c.Pipeline.CoincidentMeterCount)
	c.Pipeline.RetryZeroRates = getEnvAsBool("ROOMLOAD_RETRY_ZERO_RATES", c.Pipeline.RetryZeroRates)

	c.Watch.Dir = getEnv("ROOMLOAD_WATCH_DIR", c.Watch.Dir)
	c.Logging.Level = getEnv("ROOMLOAD_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("ROOMLOAD_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Classifier.Provider {
	case "llm":
	case "http":
		if c.Classifier.Endpoint == "" {
			return fmt.Errorf("classifier.endpoint is required for the http classifier")
		}
	default:
		return fmt.Errorf("invalid classifier provider: %s (valid: llm, http)", c.Classifier.Provider)
	}

	switch c.Retrieval.Provider {
	case "knowledge", "none":
	case "http":
		if c.Retrieval.Endpoint == "" {
			return fmt.Errorf("retrieval.endpoint is required for the http retriever")
		}
	default:
		return fmt.Errorf("invalid retrieval provider: %s (valid: knowledge, http, none)", c.Retrieval.Provider)
	}

	switch c.Knowledge.Store {
	case "sqlite":
		if c.Knowledge.DataDir == "" {
			return fmt.Errorf("knowledge.data_dir is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid knowledge store: %s (valid: sqlite, memory)", c.Knowledge.Store)
	}

	if cf := c.Pipeline.CoincidentFactor; cf <= 0 || cf > 1 {
		return fmt.Errorf("pipeline.coincident_factor must be in (0, 1], got %v", cf)
	}
	if c.Pipeline.CoincidentMeterCount < 0 {
		return fmt.Errorf("pipeline.coincident_meter_count must not be negative")
	}
	if c.Ollama.EmbedBatchSize < 0 || c.Ollama.EmbedDimensions < 0 {
		return fmt.Errorf("ollama.embed_batch_size and ollama.embed_dimensions must not be negative")
	}
	if c.Retrieval.CacheCapacity < 0 {
		return fmt.Errorf("retrieval.cache_capacity must not be negative")
	}

	for name, d := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"ollama.timeout":       c.Ollama.Timeout,
		"classifier.timeout":   c.Classifier.Timeout,
		"retrieval.timeout":    c.Retrieval.Timeout,
		"watch.debounce":       c.Watch.Debounce,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	return nil
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return def
}
