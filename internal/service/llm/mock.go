package llm

import (
	"context"
	"fmt"
	"strings"

	loremgen "github.com/bozaro/golorem"

	"livingdoc/internal/domain/services"
)

// MockProvider generates plausible suggestion lines without a real
// API key. Used for development and local runs; model names start
// with "mock-".
type MockProvider struct {
	generator *loremgen.Lorem
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{generator: loremgen.New()}
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Complete emits review-question lines in the pipe-delimited shape
// the suggestion pipeline parses.
func (p *MockProvider) Complete(ctx context.Context, req *services.CompletionRequest) (*services.CompletionResult, error) {
	if !strings.HasPrefix(req.Model, "mock-") {
		return nil, fmt.Errorf("model %q is not supported by the mock provider", req.Model)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := []string{"Introduction", "Methods", "Results"}
	var out strings.Builder
	for i, section := range sections {
		question := strings.TrimSuffix(p.generator.Sentence(5, 12), ".")
		fmt.Fprintf(&out, "%s | %s? | src-%d\n", section, question, i+1)
	}

	text := out.String()
	return &services.CompletionResult{
		Text:       text,
		TokenCount: len(strings.Fields(text)),
	}, nil
}

var _ services.LLMProvider = (*MockProvider)(nil)
