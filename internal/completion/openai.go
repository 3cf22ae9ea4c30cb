package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tablechat/tablechat/internal/config"
)

type OpenAIGateway struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
	timeout      time.Duration
}

func NewOpenAIGateway(cfg config.CompletionConfig) (*OpenAIGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("completion api key is required")
	}
	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		return nil, fmt.Errorf("completion default model is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		return nil, fmt.Errorf("completion max tokens must be positive")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIGateway{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
		maxTokens:    maxTokens,
		timeout:      timeout,
	}, nil
}

func (g *OpenAIGateway) Complete(ctx context.Context, prompt string, role Role, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	selected := strings.TrimSpace(model)
	if selected == "" {
		selected = g.defaultModel
	}
	chatRole := openai.ChatMessageRoleUser
	if role == RoleSystem {
		chatRole = openai.ChatMessageRoleSystem
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       selected,
		Temperature: 0,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: chatRole, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
