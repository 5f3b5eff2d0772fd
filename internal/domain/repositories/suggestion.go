package repositories

import (
	"context"

	"livingdoc/internal/domain/models"
)

// SuggestionRepository persists AI comment suggestions and the
// immutable log of provider invocations.
type SuggestionRepository interface {
	// Create inserts a suggestion together with its trust-annotated
	// sources.
	Create(ctx context.Context, s *models.AICommentSuggestion, sources []models.SuggestionSource) error

	GetByID(ctx context.Context, id string) (*models.AICommentSuggestion, error)
	ListByVersion(ctx context.Context, versionID string, status models.SuggestionStatus) ([]models.AICommentSuggestion, error)
	ListSources(ctx context.Context, suggestionID string) ([]models.SuggestionSource, error)

	// CountPending counts pending suggestions for a version, and for
	// one anchor key. Pending suggestions are provisional AI comments
	// for rate-limiting purposes.
	CountPending(ctx context.Context, versionID string) (int, error)
	CountPendingForSection(ctx context.Context, versionID, anchorKey string) (int, error)

	// ResolveCAS moves pending -> approved/rejected atomically;
	// StateConflictError when two reviewers race.
	ResolveCAS(ctx context.Context, id string, to models.SuggestionStatus, reviewer string) error

	// AppendLog records one provider invocation. Insert-only.
	AppendLog(ctx context.Context, log *models.GenerationLog) error
}

// ContextSourceRepository serves the pre-approved, trust-annotated
// retrieval corpus. The pipeline never retrieves beyond it.
type ContextSourceRepository interface {
	ListForVersion(ctx context.Context, versionID string, minTrust models.TrustLevel) ([]models.ContextDocument, error)
}
