package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Model        ModelConfig        `yaml:"model"`
	Redis        RedisConfig        `yaml:"redis"`
	Store        StoreConfig        `yaml:"store"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// LogConfig controls the zerolog logger
type LogConfig struct {
	Level      string `yaml:"level" split_words:"true" validate:"required"`
	Format     string `yaml:"format" split_words:"true" validate:"oneof=json console"`
	Output     string `yaml:"output" split_words:"true" validate:"oneof=stdout stderr file"`
	FilePath   string `yaml:"file_path" split_words:"true" validate:"required_if=Output file"`
	TimeFormat string `yaml:"time_format" split_words:"true"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr" split_words:"true" validate:"required"`
	Mode string `yaml:"mode" split_words:"true" validate:"oneof=debug release test"`
}

// ModelConfig selects and tunes the chat model provider
type ModelConfig struct {
	Provider    string        `yaml:"provider" split_words:"true" validate:"oneof=openai ollama deepseek ark"`
	Model       string        `yaml:"model" split_words:"true" validate:"required"`
	APIKey      string        `yaml:"api_key" split_words:"true" validate:"required_unless=Provider ollama"`
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	MaxTokens   int           `yaml:"max_tokens" split_words:"true" validate:"gt=0"`
	Temperature float64       `yaml:"temperature" split_words:"true" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" split_words:"true" validate:"gt=0"`
	MaxRetries  int           `yaml:"max_retries" split_words:"true" validate:"gte=0,lte=5"`
}

// RedisConfig locates the Redis document store
type RedisConfig struct {
	URL       string `yaml:"url" split_words:"true"`
	KeyPrefix string `yaml:"key_prefix" split_words:"true"`
}

// StoreConfig picks the document store backend
type StoreConfig struct {
	Backend string `yaml:"backend" split_words:"true" validate:"oneof=redis memory"`
}

// ConversationConfig tunes the turn processor
type ConversationConfig struct {
	// HistoryWindow limits the replayed transcript; 0 replays everything
	HistoryWindow int           `yaml:"history_window" split_words:"true" validate:"gte=0"`
	LockTTL       time.Duration `yaml:"lock_ttl" split_words:"true" validate:"gt=0"`
	DefaultUserID string        `yaml:"default_user_id" split_words:"true" validate:"required"`
	ListLimit     int           `yaml:"list_limit" split_words:"true" validate:"gt=0"`
}

// lockSlack covers the store reads and writes around the model call
const lockSlack = 30 * time.Second

// TurnBudget bounds the model phase of one turn, retries and backoff included
func (m ModelConfig) TurnBudget() time.Duration {
	return m.Timeout * time.Duration(m.MaxRetries+1)
}

// Default returns the configuration used when neither file nor env set a value
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "logs/concierge.log",
			TimeFormat: "rfc3339",
		},
		Server: ServerConfig{
			Addr: ":8000",
			Mode: "release",
		},
		Model: ModelConfig{
			Provider:    "openai",
			Model:       "openai/gpt-4o-mini",
			BaseURL:     "https://openrouter.ai/api/v1",
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			KeyPrefix: "tadaa",
		},
		Store: StoreConfig{
			Backend: "redis",
		},
		Conversation: ConversationConfig{
			LockTTL:       4 * time.Minute,
			DefaultUserID: "anonymous",
			ListLimit:     100,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file and environment
// variables (prefix TADAA_, e.g. TADAA_MODEL_API_KEY), then validates.
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// file is optional
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		}
	}

	if err := envconfig.Process("TADAA", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks field constraints
func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if config.Store.Backend == "redis" && config.Redis.URL == "" {
		return fmt.Errorf("invalid configuration: redis.url is required for the redis store")
	}
	// a redis lock that expires mid-turn lets a second turn interleave
	if minTTL := config.Model.TurnBudget() + lockSlack; config.Store.Backend == "redis" && config.Conversation.LockTTL <= minTTL {
		return fmt.Errorf("invalid configuration: conversation.lock_ttl %s must exceed %s (model.timeout x (max_retries+1) + %s)",
			config.Conversation.LockTTL, minTTL, lockSlack)
	}
	return nil
}
