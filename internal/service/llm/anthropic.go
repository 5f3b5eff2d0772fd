// Package llm adapts model providers to the completion boundary the
// suggestion pipeline consumes.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"livingdoc/internal/domain/services"
)

// AnthropicProvider implements the LLMProvider interface for Anthropic
// (Claude) models.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider with the given API key.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicProvider{client: &client}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends one prompt and returns the model's text.
func (p *AnthropicProvider) Complete(ctx context.Context, req *services.CompletionRequest) (*services.CompletionResult, error) {
	if !strings.HasPrefix(req.Model, "claude-") {
		return nil, fmt.Errorf("model %q is not supported by the anthropic provider", req.Model)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &services.CompletionResult{
		Text:       text.String(),
		TokenCount: int(message.Usage.OutputTokens),
	}, nil
}

var _ services.LLMProvider = (*AnthropicProvider)(nil)
