package insight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.5-flash"

	// APIKeyEnv is the environment variable holding the provider credential.
	APIKeyEnv = "API_KEY"

	// PlaceholderAPIKey is substituted when no credential is configured.
	PlaceholderAPIKey = "YOUR_API_KEY"

	// GeminiBaseURL is the OpenAI-compatible Gemini endpoint.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	anthropicMaxTokens = 256
)

// Provider submits a prompt to a text-generation endpoint.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate returns the endpoint's text for prompt
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
}

// NewProvider creates a provider by name.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "gemini":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GeminiBaseURL
		}
		return newChatCompletionProvider("gemini", cfg.APIKey, baseURL), nil
	case "openai":
		return newChatCompletionProvider("openai", cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}

// ResolveAPIKey returns configured when set, otherwise the API_KEY environment
// variable, otherwise the placeholder. missing reports whether the placeholder is used.
func ResolveAPIKey(configured string) (key string, missing bool) {
	if configured != "" {
		return configured, false
	}
	if env := os.Getenv(APIKeyEnv); env != "" {
		return env, false
	}
	return PlaceholderAPIKey, true
}

// ChatCompletionProvider talks to OpenAI-compatible chat completion endpoints.
type ChatCompletionProvider struct {
	name   string
	client openai.Client
}

func newChatCompletionProvider(name, apiKey, baseURL string) *ChatCompletionProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &ChatCompletionProvider{
		name:   name,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name
func (p *ChatCompletionProvider) Name() string {
	return p.name
}

// Generate sends prompt as a single user message.
func (p *ChatCompletionProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	response, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Message.Content, nil
}

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends prompt as a single user message and joins the text blocks.
func (p *AnthropicProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return text.String(), nil
}
