package services

import (
	"context"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/policy"
)

// VersionManager owns the Publication -> DocumentVersion lifecycle
// and the DOI assignment that fires on publish.
type VersionManager interface {
	CreatePublication(ctx context.Context, req *CreatePublicationRequest) (*models.Publication, error)
	GetPublication(ctx context.Context, id string) (*models.Publication, error)
	ListPublications(ctx context.Context, limit, offset int) ([]models.Publication, error)

	CreateDraft(ctx context.Context, req *CreateDraftRequest) (*models.DocumentVersion, error)

	GetVersion(ctx context.Context, id string) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, publicationID string) ([]models.DocumentVersion, error)

	// SubmitForReview moves draft -> submitted.
	SubmitForReview(ctx context.Context, actor policy.Actor, versionID string) (*models.DocumentVersion, error)

	// InviteReviewer adds an invited reviewer to the version's review
	// process.
	InviteReviewer(ctx context.Context, actor policy.Actor, versionID, reviewerUserID string) (*models.Reviewer, error)

	// RespondToInvitation records the caller's accept/decline of
	// their own invitation. The first acceptance moves the version
	// submitted -> under_review.
	RespondToInvitation(ctx context.Context, actor policy.Actor, versionID string, accept bool) (*models.Reviewer, error)

	ListReviewers(ctx context.Context, versionID string) ([]models.Reviewer, error)

	// CompleteReview decides a submitted/under_review version.
	// revision_required spawns a new draft carrying accepted comments
	// forward; the reviewed version itself is left untouched.
	CompleteReview(ctx context.Context, actor policy.Actor, req *CompleteReviewRequest) (*CompleteReviewResult, error)

	// Publish moves accepted -> published and runs the DOI path.
	// Idempotent: a version already findable returns its DOI without
	// a second mint. DOI failures degrade to doi_status=error and
	// never block publication.
	Publish(ctx context.Context, actor policy.Actor, versionID string) (*models.DocumentVersion, error)

	// Rollback creates a new draft whose content equals a prior
	// published version's. History is never rewritten.
	Rollback(ctx context.Context, actor policy.Actor, req *RollbackRequest) (*models.DocumentVersion, error)

	// CloseDiscussion stops new comment submissions on a version.
	CloseDiscussion(ctx context.Context, actor policy.Actor, versionID string, status models.DiscussionStatus) error
}

// CreatePublicationRequest creates the stable identity for a work.
type CreatePublicationRequest struct {
	Actor      policy.Actor `json:"-"`
	Title      string       `json:"title"`
	ShortTitle string       `json:"short_title,omitempty"`
}

// CreateDraftRequest adds a first (or fresh) draft version.
type CreateDraftRequest struct {
	Actor         policy.Actor           `json:"-"`
	PublicationID string                 `json:"publication_id"`
	Content       string                 `json:"content"`
	Abstract      string                 `json:"abstract,omitempty"`
	Authors       []models.VersionAuthor `json:"authors,omitempty"`
}

// CompleteReviewRequest is the editor's decision.
type CompleteReviewRequest struct {
	VersionID    string               `json:"version_id"`
	Outcome      models.ReviewOutcome `json:"outcome"`
	EditorReason string               `json:"editor_reason,omitempty"`
}

// CompleteReviewResult reports the decided version and, for
// revision_required, the freshly created draft.
type CompleteReviewResult struct {
	Version  *models.DocumentVersion `json:"version"`
	Revision *models.DocumentVersion `json:"revision,omitempty"`
}

// RollbackRequest restores the content of a prior published version
// as a new draft.
type RollbackRequest struct {
	PublicationID   string `json:"publication_id"`
	TargetVersionID string `json:"target_version_id"`
	Reason          string `json:"reason"`
}
