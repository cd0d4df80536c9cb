package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/utils"
	"studybuddy-backend/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderDoubao = "doubao"
	ProviderQwen   = "qwen"
	ProviderMock   = "mock"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported model provider")
	ErrMissingAPIKey       = errors.New("missing API key")
)

// Credential returns the API key of the configured provider. The mock
// provider needs none.
func Credential(cfg *config.Config) (string, error) {
	switch strings.ToLower(cfg.Model.Provider) {
	case ProviderOpenAI:
		return requireKey(cfg.OpenAI.APIKey)
	case ProviderDoubao:
		return requireKey(cfg.Doubao.APIKey)
	case ProviderQwen:
		return requireKey(cfg.Qwen.APIKey)
	case ProviderMock:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Model.Provider)
	}
}

func requireKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}

// Name returns the model identifier sent with every request.
func Name(cfg *config.Config) string {
	switch strings.ToLower(cfg.Model.Provider) {
	case ProviderOpenAI:
		return cfg.OpenAI.Model
	case ProviderDoubao:
		return cfg.Doubao.Model
	case ProviderQwen:
		return cfg.Qwen.Model
	case ProviderMock:
		return MockModelName
	default:
		return ""
	}
}

// NewChatModel builds the configured provider. It performs no network I/O.
func NewChatModel(ctx context.Context, cfg *config.Config) (einoModel.BaseChatModel, error) {
	if _, err := Credential(cfg); err != nil {
		return nil, err
	}

	provider := strings.ToLower(cfg.Model.Provider)
	logger.Infof("Using %s provider, model: %s, api key: %s", provider, Name(cfg), maskKey(cfg))

	switch provider {
	case ProviderOpenAI:
		return newOpenAIChatModel(cfg.OpenAI, providerHTTPClient(ProviderOpenAI, cfg.OpenAI.DebugRequest)), nil
	case ProviderDoubao:
		return createDoubaoModel(ctx, cfg.Doubao)
	case ProviderQwen:
		return createQwenModel(ctx, cfg.Qwen)
	default:
		return NewMockChatModel(), nil
	}
}

func providerHTTPClient(provider string, debug bool) *http.Client {
	if !debug {
		return utils.NewHTTPClient(nil)
	}
	return utils.NewHTTPClient(func(base http.RoundTripper) http.RoundTripper {
		return NewDebugTransport(base, provider)
	})
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create doubao model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.BaseChatModel, error) {
	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		HTTPClient:  providerHTTPClient(ProviderQwen, cfg.DebugRequest),
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}

func maskKey(cfg *config.Config) string {
	key, _ := Credential(cfg)
	if len(key) <= 6 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..."
}
