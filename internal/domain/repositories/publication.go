package repositories

import (
	"context"

	"livingdoc/internal/domain/models"
)

// PublicationRepository persists Publications.
type PublicationRepository interface {
	Create(ctx context.Context, pub *models.Publication) error
	GetByID(ctx context.Context, id string) (*models.Publication, error)
	List(ctx context.Context, limit, offset int) ([]models.Publication, error)

	// SetMetaDOI assigns the grouping identifier. Only legal once;
	// a second assignment with a different value fails.
	SetMetaDOI(ctx context.Context, id, doi string) error
}

// VersionRepository persists DocumentVersions. Status changes go
// through compare-and-set so concurrent editors cannot corrupt state.
type VersionRepository interface {
	Create(ctx context.Context, v *models.DocumentVersion) error
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	ListByPublication(ctx context.Context, publicationID string) ([]models.DocumentVersion, error)

	// LockPublication takes the per-publication advisory lock that
	// serializes version numbering. Valid only inside a transaction.
	LockPublication(ctx context.Context, publicationID string) error

	// NextVersionNumber returns max(version_number)+1 for the
	// publication. Callers must hold the publication's advisory lock
	// when using the result for an insert.
	NextVersionNumber(ctx context.Context, publicationID string) (int, error)

	// CurrentPublished returns the latest published version, or
	// ErrNotFound if none exists.
	CurrentPublished(ctx context.Context, publicationID string) (*models.DocumentVersion, error)

	// UpdateStatusCAS transitions status from -> to atomically.
	// Returns StateConflictError if the row is no longer in `from`.
	UpdateStatusCAS(ctx context.Context, id string, from, to models.VersionStatus, actor string) error

	// SetDOI records the minted identifier and its registration state.
	SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error

	// UpdateDOIStatus moves just the identifier state, leaving the
	// content lifecycle alone.
	UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error

	// ListDOIErrored returns published versions whose registration
	// failed and needs a background retry.
	ListDOIErrored(ctx context.Context, limit int) ([]models.DocumentVersion, error)

	SetDiscussionStatus(ctx context.Context, id string, status models.DiscussionStatus, actor string) error

	ListAuthors(ctx context.Context, versionID string) ([]models.VersionAuthor, error)
	AddAuthor(ctx context.Context, author *models.VersionAuthor) error
}

// ReviewRepository persists review processes and reviewer assignments.
type ReviewRepository interface {
	CreateProcess(ctx context.Context, p *models.ReviewProcess) error
	GetProcessByVersion(ctx context.Context, versionID string) (*models.ReviewProcess, error)
	CompleteProcess(ctx context.Context, processID, decision string) error
	AddReviewer(ctx context.Context, r *models.Reviewer) error
	UpdateReviewerState(ctx context.Context, reviewerID string, state models.ReviewerState) error
	ListReviewers(ctx context.Context, processID string) ([]models.Reviewer, error)
}
