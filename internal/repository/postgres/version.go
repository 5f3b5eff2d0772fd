package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// VersionRepository implements repositories.VersionRepository
type VersionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(config *RepositoryConfig) repositories.VersionRepository {
	return &VersionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const versionColumns = `id, publication_id, version_number, status, COALESCE(doi, ''),
	COALESCE(doi_status, ''), content, COALESCE(abstract, ''), discussion_status,
	COALESCE(revised_from_id, ''), COALESCE(status_changed_by, ''), status_changed_at, created_at`

func scanVersion(row pgx.Row) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	err := row.Scan(
		&v.ID, &v.PublicationID, &v.VersionNumber, &v.Status, &v.DOI,
		&v.DOIStatus, &v.Content, &v.Abstract, &v.DiscussionStatus,
		&v.RevisedFromID, &v.StatusChangedBy, &v.StatusChangedAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new version. A version_number collision means the
// caller computed the number outside the publication lock; that is a
// data-integrity fault and aborts the enclosing transaction.
func (r *VersionRepository) Create(ctx context.Context, v *models.DocumentVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.StatusChangedAt = now
	if v.Status == "" {
		v.Status = models.VersionDraft
	}
	if v.DiscussionStatus == "" {
		v.DiscussionStatus = models.DiscussionOpen
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, publication_id, version_number, status, doi, doi_status,
			content, abstract, discussion_status, revised_from_id,
			status_changed_by, status_changed_at, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''),
			$9, NULLIF($10, ''), NULLIF($11, ''), $12, $13)
	`, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		v.ID, v.PublicationID, v.VersionNumber, v.Status, v.DOI, string(v.DOIStatus),
		v.Content, v.Abstract, v.DiscussionStatus, v.RevisedFromID,
		v.StatusChangedBy, v.StatusChangedAt, v.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("version_number %d collision for publication %s: %w",
				v.VersionNumber, v.PublicationID, domain.ErrStateConflict)
		}
		return fmt.Errorf("create version: %w", err)
	}

	return nil
}

// GetByID retrieves a version by ID
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, versionColumns, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	v, err := scanVersion(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("version %s not found", id)}
		}
		return nil, fmt.Errorf("get version: %w", err)
	}

	return v, nil
}

// ListByPublication returns every version of a publication, newest first
func (r *VersionRepository) ListByPublication(ctx context.Context, publicationID string) ([]models.DocumentVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE publication_id = $1
		ORDER BY version_number DESC
	`, versionColumns, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, publicationID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []models.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}

	return versions, rows.Err()
}

// LockPublication takes a transaction-scoped advisory lock on the
// publication so concurrent version creation serializes numbering.
func (r *VersionRepository) LockPublication(ctx context.Context, publicationID string) error {
	tx := repositories.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("advisory lock requires a transaction")
	}

	h := fnv.New64a()
	h.Write([]byte(publicationID))
	key := int64(h.Sum64())

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("lock publication: %w", err)
	}

	return nil
}

// NextVersionNumber computes max+1. Callers hold the publication
// advisory lock, so the unique constraint only fires on misuse.
func (r *VersionRepository) NextVersionNumber(ctx context.Context, publicationID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM %s
		WHERE publication_id = $1
	`, r.tables.Versions)

	var next int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, publicationID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}

	return next, nil
}

// CurrentPublished returns the latest published version
func (r *VersionRepository) CurrentPublished(ctx context.Context, publicationID string) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE publication_id = $1 AND status = $2
		ORDER BY version_number DESC
		LIMIT 1
	`, versionColumns, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	v, err := scanVersion(executor.QueryRow(ctx, query, publicationID, models.VersionPublished))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("publication %s has no published version", publicationID)}
		}
		return nil, fmt.Errorf("current published version: %w", err)
	}

	return v, nil
}

// UpdateStatusCAS transitions status with compare-and-set semantics.
// Zero rows affected means another operation won the race.
func (r *VersionRepository) UpdateStatusCAS(ctx context.Context, id string, from, to models.VersionStatus, actor string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3, status_changed_by = $4, status_changed_at = $5
		WHERE id = $1 AND status = $2
	`, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, from, to, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "version", ID: id}
	}

	return nil
}

// SetDOI records the minted identifier and its registration state
func (r *VersionRepository) SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error {
	query := fmt.Sprintf(`
		UPDATE %s SET doi = $2, doi_status = $3 WHERE id = $1
	`, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, doi, status)
	if err != nil {
		return fmt.Errorf("set version doi: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("version %s not found", id)}
	}

	return nil
}

// UpdateDOIStatus moves only the identifier state
func (r *VersionRepository) UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET doi_status = $2 WHERE id = $1`, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update version doi status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("version %s not found", id)}
	}

	return nil
}

// ListDOIErrored returns published versions awaiting a registration retry
func (r *VersionRepository) ListDOIErrored(ctx context.Context, limit int) ([]models.DocumentVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = $1 AND doi_status = $2
		ORDER BY status_changed_at ASC
		LIMIT $3
	`, versionColumns, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, models.VersionPublished, models.DOIStatusError, limit)
	if err != nil {
		return nil, fmt.Errorf("list doi-errored versions: %w", err)
	}
	defer rows.Close()

	var versions []models.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}

	return versions, rows.Err()
}

// SetDiscussionStatus opens or closes commenting on a version
func (r *VersionRepository) SetDiscussionStatus(ctx context.Context, id string, status models.DiscussionStatus, actor string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET discussion_status = $2, status_changed_by = $3, status_changed_at = $4
		WHERE id = $1
	`, r.tables.Versions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, status, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set discussion status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("version %s not found", id)}
	}

	return nil
}

// ListAuthors returns the byline for a version in display order
func (r *VersionRepository) ListAuthors(ctx context.Context, versionID string) ([]models.VersionAuthor, error) {
	query := fmt.Sprintf(`
		SELECT id, version_id, name, COALESCE(institution, ''), COALESCE(email, ''),
			COALESCE(orcid, ''), COALESCE(user_id, ''), author_order, corresponding
		FROM %s
		WHERE version_id = $1
		ORDER BY author_order ASC
	`, r.tables.VersionAuthors)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("list version authors: %w", err)
	}
	defer rows.Close()

	var authors []models.VersionAuthor
	for rows.Next() {
		var a models.VersionAuthor
		if err := rows.Scan(&a.ID, &a.VersionID, &a.Name, &a.Institution, &a.Email,
			&a.ORCID, &a.UserID, &a.Order, &a.Corresponding); err != nil {
			return nil, fmt.Errorf("scan version author: %w", err)
		}
		authors = append(authors, a)
	}

	return authors, rows.Err()
}

// AddAuthor appends a byline entry
func (r *VersionRepository) AddAuthor(ctx context.Context, author *models.VersionAuthor) error {
	if author.ID == "" {
		author.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, version_id, name, institution, email, orcid, user_id, author_order, corresponding)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`, r.tables.VersionAuthors)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		author.ID, author.VersionID, author.Name, author.Institution, author.Email,
		author.ORCID, author.UserID, author.Order, author.Corresponding,
	)
	if err != nil {
		return fmt.Errorf("add version author: %w", err)
	}

	return nil
}
