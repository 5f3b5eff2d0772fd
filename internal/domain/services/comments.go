package services

import (
	"context"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/policy"
)

// CommentWorkflow owns comment validation, the moderation state
// machine and the submission-time rate limits.
type CommentWorkflow interface {
	// SubmitComment validates and admits a comment in one atomic
	// step: rule violations return ValidationError listing every
	// broken rule, limit violations return RateLimitError, and the
	// rate counters move together with the insert.
	SubmitComment(ctx context.Context, req *SubmitCommentRequest) (*models.Comment, error)

	// ResubmitComment re-enters a draft returned by needs_revision.
	// Same identity, not a new comment.
	ResubmitComment(ctx context.Context, actor policy.Actor, commentID, body string) (*models.Comment, error)

	// ModerateComment decides a submitted or under_review comment.
	// Acceptance of a DOI-bearing type runs the identifier path and
	// finishes in published; rejection requires a reason.
	ModerateComment(ctx context.Context, actor policy.Actor, req *ModerateCommentRequest) (*models.Comment, error)

	// RetractComment soft-marks a published comment. The record and
	// any minted DOI survive for citation integrity.
	RetractComment(ctx context.Context, actor policy.Actor, commentID string) error

	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, versionID string, filter ListCommentsFilter) ([]models.Comment, error)
}

// SubmitCommentRequest carries a complete submission, authors and
// references included.
type SubmitCommentRequest struct {
	Actor       policy.Actor               `json:"-"`
	VersionID   string                     `json:"version_id"`
	Type        models.CommentTypeCode     `json:"type"`
	Body        string                     `json:"body"`
	Anchor      models.Anchor              `json:"anchor"`
	ParentID    string                     `json:"parent_id,omitempty"`
	CoAuthors   []string                   `json:"co_authors,omitempty"`
	References  []models.CommentReference  `json:"references,omitempty"`
	Conflict    *models.ConflictOfInterest `json:"conflict_of_interest,omitempty"`
	AIGenerated bool                       `json:"-"`
	// SuggestionID links an approved AI suggestion to the comment it
	// became. Set by the suggestion pipeline, never by clients.
	SuggestionID string `json:"-"`
}

// ModerateCommentRequest is the moderator's decision.
type ModerateCommentRequest struct {
	CommentID string                    `json:"comment_id"`
	Decision  models.ModerationDecision `json:"decision"`
	Reason    string                    `json:"reason,omitempty"`
}

// ListCommentsFilter narrows comment listings.
type ListCommentsFilter struct {
	Type      models.CommentTypeCode `json:"type,omitempty"`
	Status    models.CommentStatus   `json:"status,omitempty"`
	ParentID  string                 `json:"parent_id,omitempty"`
	RootsOnly bool                   `json:"roots_only,omitempty"`
}
