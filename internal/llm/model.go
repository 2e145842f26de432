package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"

	"tadaa_concierge/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewChatModel builds the chat model for the configured provider
func NewChatModel(ctx context.Context, cfg config.ModelConfig) (model.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch cfg.Provider {
	case "openai":
		var m *openai.ChatModel
		m, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     cfg.Timeout,
		})
		chatModel = m
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		var m *ollama.ChatModel
		m, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Format:  json.RawMessage(`"json"`),
			Options: &api.Options{
				Temperature: temperature,
				NumPredict:  maxTokens,
			},
		})
		chatModel = m
	case "deepseek":
		var m *deepseek.ChatModel
		m, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Timeout:     cfg.Timeout,
		})
		chatModel = m
	case "ark":
		timeout := cfg.Timeout
		var m *ark.ChatModel
		m, err = ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     &timeout,
		})
		chatModel = m
	default:
		return nil, fmt.Errorf("unsupported model provider: %q", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("error creating %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}
