package services

import (
	"context"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/policy"
)

// SuggestionPipeline generates candidate comments and gates them
// behind human approval. AI output never skips moderation: approval
// feeds the result into the normal comment submission path.
type SuggestionPipeline interface {
	// Generate invokes the model with a retrieval context restricted
	// to pre-approved, trust-annotated sources. Suggestions without a
	// qualifying source are discarded, not surfaced. Every invocation
	// is logged regardless of outcome. Cancelling the context
	// abandons the run without side effects beyond the log.
	Generate(ctx context.Context, req *GenerateRequest) ([]models.AICommentSuggestion, error)

	// Approve turns a pending suggestion into a real comment with
	// ai_generated=true, submitted through CommentWorkflow.
	Approve(ctx context.Context, actor policy.Actor, suggestionID string) (*models.Comment, error)

	// ModifyAndApprove approves with an edited body.
	ModifyAndApprove(ctx context.Context, actor policy.Actor, suggestionID, editedBody string) (*models.Comment, error)

	// Reject marks the suggestion terminal; no comment is created.
	Reject(ctx context.Context, actor policy.Actor, suggestionID string) error

	ListSuggestions(ctx context.Context, versionID string, status models.SuggestionStatus) ([]models.AICommentSuggestion, error)
}

// GenerateRequest asks for suggestions on one version.
type GenerateRequest struct {
	Actor      policy.Actor `json:"-"`
	VersionID  string       `json:"version_id"`
	PromptName string       `json:"prompt_name"`
	// MaxSuggestions caps a single run; the per-version AI limits
	// still apply on top.
	MaxSuggestions int `json:"max_suggestions,omitempty"`
}
