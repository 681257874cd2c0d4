package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/gemini"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "config.yaml"

const (
	BackendREST  = "rest"
	BackendGenAI = "genai"

	MaxRowConcurrency = 10
)

type Config struct {
	Model      ModelConfig         `yaml:"model"`
	Classifier ClassifierConfig    `yaml:"classifier"`
	Batch      BatchConfig         `yaml:"batch"`
	Criteria   classifier.Criteria `yaml:"criteria"`
	Kafka      KafkaConfig         `yaml:"kafka"`
	Store      StoreConfig         `yaml:"store"`
	HTTP       HTTPConfig          `yaml:"http"`
	LogLevel   string              `yaml:"log_level"`
}

type ModelConfig struct {
	Backend string        `yaml:"backend"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClassifierConfig struct {
	SampleCount    int  `yaml:"sample_count"`
	ParallelRounds bool `yaml:"parallel_rounds"`
}

type BatchConfig struct {
	RowConcurrency int           `yaml:"row_concurrency"`
	MaxRows        int           `yaml:"max_rows"`
	RowRetries     uint64        `yaml:"row_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	EventsTopic  string   `yaml:"events_topic"`
	ResultsTopic string   `yaml:"results_topic"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type StoreConfig struct {
	ConnString string `yaml:"conn_string"`
}

func (s StoreConfig) Enabled() bool { return s.ConnString != "" }

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend: BackendREST,
			BaseURL: gemini.DefaultBaseURL,
			Name:    gemini.DefaultModel,
			Timeout: gemini.DefaultTimeout,
		},
		Classifier: ClassifierConfig{
			SampleCount:    classifier.DefaultSampleCount,
			ParallelRounds: true,
		},
		Batch: BatchConfig{
			RowConcurrency: 4,
			MaxRows:        120,
			RetryBackoff:   time.Second,
		},
		Kafka: KafkaConfig{
			EventsTopic:  "prevd-classification-events",
			ResultsTopic: "prevd-classified-rows",
		},
		HTTP:     HTTPConfig{Addr: ":8080"},
		LogLevel: "info",
	}
}

// Load reads defaults, then the YAML file at path (if it exists), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("GEMINI_API_BASE"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("MODEL_BACKEND"); v != "" {
		c.Model.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.ConnString = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MAX_SYNC_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_SYNC_ROWS: %w", err)
		}
		c.Batch.MaxRows = n
	}
	return nil
}

// Validate rejects unusable settings and clamps counts into their allowed ranges.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case BackendREST, BackendGenAI:
	default:
		return fmt.Errorf("model.backend: unknown backend %q", c.Model.Backend)
	}
	if c.Batch.MaxRows < 1 {
		return fmt.Errorf("batch.max_rows must be positive, got %d", c.Batch.MaxRows)
	}
	c.Classifier.SampleCount = ClampSampleCount(c.Classifier.SampleCount)
	c.Batch.RowConcurrency = ClampRowConcurrency(c.Batch.RowConcurrency)
	return nil
}

// ClampSampleCount bounds n to 1..7.
func ClampSampleCount(n int) int {
	return min(max(n, 1), classifier.MaxSampleCount)
}

// ClampRowConcurrency bounds n to 1..10.
func ClampRowConcurrency(n int) int {
	return min(max(n, 1), MaxRowConcurrency)
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
