package services

import "context"

// CompletionRequest is one prompt sent to a model provider. The
// provider assumes no side effects; logging and trust filtering are
// entirely the caller's job.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// CompletionResult is the provider's answer.
type CompletionResult struct {
	Text       string
	TokenCount int
}

// LLMProvider is the consumed language-model boundary.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}
