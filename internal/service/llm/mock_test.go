package llm

import (
	"context"
	"strings"
	"testing"

	"livingdoc/internal/domain/services"
)

func TestMockProviderEmitsParseableLines(t *testing.T) {
	p := NewMockProvider()

	result, err := p.Complete(context.Background(), &services.CompletionRequest{
		Model:  "mock-reviewer",
		Prompt: "review this",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.TokenCount == 0 {
		t.Error("expected a token count")
	}

	lines := strings.Split(strings.TrimSpace(result.Text), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for _, line := range lines {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			t.Fatalf("line %q is not pipe-delimited into 3 fields", line)
		}
		if !strings.HasSuffix(strings.TrimSpace(parts[1]), "?") {
			t.Errorf("question %q does not end with a question mark", parts[1])
		}
		if !strings.Contains(parts[2], "src-") {
			t.Errorf("line %q cites no source", line)
		}
	}
}

func TestMockProviderRejectsForeignModels(t *testing.T) {
	p := NewMockProvider()

	if _, err := p.Complete(context.Background(), &services.CompletionRequest{
		Model: "claude-sonnet",
	}); err == nil {
		t.Fatal("expected an error for a non-mock model name")
	}
}

func TestMockProviderHonorsCancellation(t *testing.T) {
	p := NewMockProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Complete(ctx, &services.CompletionRequest{Model: "mock-reviewer"}); err == nil {
		t.Fatal("expected a context error")
	}
}
