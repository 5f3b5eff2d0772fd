package repositories

import (
	"context"
	"time"

	"livingdoc/internal/domain/models"
)

// CommentFilter narrows ListByVersion.
type CommentFilter struct {
	Type     models.CommentTypeCode
	Status   models.CommentStatus
	ParentID string
	// RootsOnly selects comments with no parent.
	RootsOnly bool
}

// CommentCounts is the snapshot the rate limiter decides on. It must
// be computed inside the same transaction that inserts the comment.
type CommentCounts struct {
	AITotal     int // accepted + pending AI comments on the version
	AISection   int // same, restricted to one anchor key
	UserDaySect int // human comments by (user, anchor key, calendar day)
}

// CommentRepository persists comments and their owned records
// (authors, references, conflict declarations, moderation decisions).
type CommentRepository interface {
	// Create inserts the comment with its authors, references and
	// optional conflict declaration in one shot.
	Create(ctx context.Context, c *models.Comment, authors []models.CommentAuthor, refs []models.CommentReference, coi *models.ConflictOfInterest) error

	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByVersion(ctx context.Context, versionID string, filter CommentFilter) ([]models.Comment, error)
	ListReferences(ctx context.Context, commentID string) ([]models.CommentReference, error)
	ListAuthors(ctx context.Context, commentID string) ([]models.CommentAuthor, error)

	// LockVersionForCounting takes the per-version advisory lock that
	// serializes racing submissions. Valid only inside a transaction.
	LockVersionForCounting(ctx context.Context, versionID string) error

	// Counts computes the rate-limit snapshot for one prospective
	// submission.
	Counts(ctx context.Context, versionID, anchorKey, userID string, day time.Time) (CommentCounts, error)

	// UpdateStatusCAS transitions status from -> to atomically;
	// StateConflictError when the comment moved under us.
	UpdateStatusCAS(ctx context.Context, id string, from, to models.CommentStatus, actor string) error

	SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error
	UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error
	ListDOIErrored(ctx context.Context, limit int) ([]models.Comment, error)

	// UpdateBody replaces the body of a draft comment on resubmission
	// after a needs_revision decision. Same identity, same thread.
	UpdateBody(ctx context.Context, id, body string) error

	MarkRetracted(ctx context.Context, id, actor string) error

	CreateModeration(ctx context.Context, m *models.CommentModeration) error
	GetModeration(ctx context.Context, commentID string) (*models.CommentModeration, error)
}
