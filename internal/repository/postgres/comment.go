package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// CommentRepository implements repositories.CommentRepository
type CommentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(config *RepositoryConfig) repositories.CommentRepository {
	return &CommentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const commentColumns = `id, version_id, COALESCE(parent_id, ''), comment_type, body,
	COALESCE(section_ref, ''), line_start, line_end, status, COALESCE(doi, ''),
	COALESCE(doi_status, ''), ai_generated, COALESCE(suggestion_id, ''), retracted,
	COALESCE(status_changed_by, ''), status_changed_at, created_at`

func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	err := row.Scan(
		&c.ID, &c.VersionID, &c.ParentID, &c.Type, &c.Body,
		&c.Anchor.Section, &c.Anchor.LineStart, &c.Anchor.LineEnd, &c.Status, &c.DOI,
		&c.DOIStatus, &c.AIGenerated, &c.SuggestionID, &c.Retracted,
		&c.StatusChangedBy, &c.StatusChangedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a comment with its owned records in one shot. Meant
// to run inside the submission transaction so the rate-limit counts
// and the insert move together.
func (r *CommentRepository) Create(ctx context.Context, c *models.Comment, authors []models.CommentAuthor, refs []models.CommentReference, coi *models.ConflictOfInterest) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.StatusChangedAt = now

	executor := GetExecutor(ctx, r.pool)

	query := fmt.Sprintf(`
		INSERT INTO %s (id, version_id, parent_id, comment_type, body, section_ref,
			line_start, line_end, status, doi, doi_status, ai_generated, suggestion_id,
			retracted, status_changed_by, status_changed_at, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9,
			NULLIF($10, ''), NULLIF($11, ''), $12, NULLIF($13, ''), $14, NULLIF($15, ''), $16, $17)
	`, r.tables.Comments)

	_, err := executor.Exec(ctx, query,
		c.ID, c.VersionID, c.ParentID, c.Type, c.Body, c.Anchor.Section,
		c.Anchor.LineStart, c.Anchor.LineEnd, c.Status, c.DOI, string(c.DOIStatus),
		c.AIGenerated, c.SuggestionID, c.Retracted, c.StatusChangedBy,
		c.StatusChangedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}

	for i := range authors {
		a := &authors[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CommentID = c.ID
		a.CreatedAt = now

		q := fmt.Sprintf(`
			INSERT INTO %s (id, comment_id, user_id, corresponding, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, r.tables.CommentAuthors)
		if _, err := executor.Exec(ctx, q, a.ID, a.CommentID, a.UserID, a.Corresponding, a.CreatedAt); err != nil {
			return fmt.Errorf("create comment author: %w", err)
		}
	}

	for i := range refs {
		ref := &refs[i]
		if ref.ID == "" {
			ref.ID = uuid.NewString()
		}
		ref.CommentID = c.ID

		q := fmt.Sprintf(`
			INSERT INTO %s (id, comment_id, title, authors, doi, url, citation_text, trust_level)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		`, r.tables.CommentReferences)
		if _, err := executor.Exec(ctx, q, ref.ID, ref.CommentID, ref.Title, ref.Authors,
			ref.DOI, ref.URL, ref.CitationText, ref.TrustLevel); err != nil {
			return fmt.Errorf("create comment reference: %w", err)
		}
	}

	if coi != nil {
		coi.CommentID = c.ID
		q := fmt.Sprintf(`
			INSERT INTO %s (comment_id, statement, has_conflict)
			VALUES ($1, $2, $3)
		`, r.tables.CommentConflicts)
		if _, err := executor.Exec(ctx, q, coi.CommentID, coi.Statement, coi.HasConflict); err != nil {
			return fmt.Errorf("create conflict declaration: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a comment by ID
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, commentColumns, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	c, err := scanComment(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("comment %s not found", id)}
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}

	return c, nil
}

// ListByVersion returns a version's comments, optionally filtered
func (r *CommentRepository) ListByVersion(ctx context.Context, versionID string, filter repositories.CommentFilter) ([]models.Comment, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s WHERE version_id = $1`, commentColumns, r.tables.Comments)

	args := []interface{}{versionID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		fmt.Fprintf(&sb, " AND comment_type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		fmt.Fprintf(&sb, " AND parent_id = $%d", len(args))
	} else if filter.RootsOnly {
		sb.WriteString(" AND parent_id IS NULL")
	}
	sb.WriteString(" ORDER BY created_at ASC")

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}

	return comments, rows.Err()
}

// ListReferences returns a comment's cited sources
func (r *CommentRepository) ListReferences(ctx context.Context, commentID string) ([]models.CommentReference, error) {
	query := fmt.Sprintf(`
		SELECT id, comment_id, title, COALESCE(authors, ''), COALESCE(doi, ''),
			COALESCE(url, ''), COALESCE(citation_text, ''), trust_level
		FROM %s
		WHERE comment_id = $1
	`, r.tables.CommentReferences)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment references: %w", err)
	}
	defer rows.Close()

	var refs []models.CommentReference
	for rows.Next() {
		var ref models.CommentReference
		if err := rows.Scan(&ref.ID, &ref.CommentID, &ref.Title, &ref.Authors,
			&ref.DOI, &ref.URL, &ref.CitationText, &ref.TrustLevel); err != nil {
			return nil, fmt.Errorf("scan comment reference: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// ListAuthors returns a comment's authorship records
func (r *CommentRepository) ListAuthors(ctx context.Context, commentID string) ([]models.CommentAuthor, error) {
	query := fmt.Sprintf(`
		SELECT id, comment_id, user_id, corresponding, created_at
		FROM %s
		WHERE comment_id = $1
	`, r.tables.CommentAuthors)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment authors: %w", err)
	}
	defer rows.Close()

	var authors []models.CommentAuthor
	for rows.Next() {
		var a models.CommentAuthor
		if err := rows.Scan(&a.ID, &a.CommentID, &a.UserID, &a.Corresponding, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment author: %w", err)
		}
		authors = append(authors, a)
	}

	return authors, rows.Err()
}

// LockVersionForCounting takes a transaction-scoped advisory lock on
// the version so concurrent submissions serialize their count checks.
func (r *CommentRepository) LockVersionForCounting(ctx context.Context, versionID string) error {
	tx := repositories.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("advisory lock requires a transaction")
	}

	h := fnv.New64a()
	h.Write([]byte(versionID))
	key := int64(h.Sum64())

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("lock version for counting: %w", err)
	}

	return nil
}

// Counts computes the rate-limit snapshot. Must run under the
// advisory lock taken by LockVersionForCounting.
func (r *CommentRepository) Counts(ctx context.Context, versionID, anchorKey, userID string, day time.Time) (repositories.CommentCounts, error) {
	var counts repositories.CommentCounts
	executor := GetExecutor(ctx, r.pool)

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	// Accepted + pending (submitted/under_review) AI comments count
	// against the version-wide cap; rejected ones do not.
	aiStatuses := []models.CommentStatus{
		models.CommentSubmitted, models.CommentUnderReview,
		models.CommentAccepted, models.CommentPublished,
	}

	query := fmt.Sprintf(`
		SELECT count(*) FROM %s
		WHERE version_id = $1 AND ai_generated AND status = ANY($2)
	`, r.tables.Comments)
	if err := executor.QueryRow(ctx, query, versionID, aiStatuses).Scan(&counts.AITotal); err != nil {
		return counts, fmt.Errorf("count ai comments: %w", err)
	}

	query = fmt.Sprintf(`
		SELECT count(*) FROM %s
		WHERE version_id = $1 AND ai_generated AND status = ANY($2)
			AND COALESCE(section_ref, 'lines:' || line_start || '-' || line_end) = $3
	`, r.tables.Comments)
	if err := executor.QueryRow(ctx, query, versionID, aiStatuses, anchorKey).Scan(&counts.AISection); err != nil {
		return counts, fmt.Errorf("count ai comments for section: %w", err)
	}

	query = fmt.Sprintf(`
		SELECT count(*) FROM %s c
		JOIN %s ca ON ca.comment_id = c.id AND ca.corresponding
		WHERE c.version_id = $1 AND NOT c.ai_generated
			AND COALESCE(c.section_ref, 'lines:' || c.line_start || '-' || c.line_end) = $2
			AND ca.user_id = $3
			AND c.created_at >= $4 AND c.created_at < $5
	`, r.tables.Comments, r.tables.CommentAuthors)
	if err := executor.QueryRow(ctx, query, versionID, anchorKey, userID, dayStart, dayEnd).Scan(&counts.UserDaySect); err != nil {
		return counts, fmt.Errorf("count user day comments: %w", err)
	}

	return counts, nil
}

// UpdateStatusCAS transitions status with compare-and-set semantics
func (r *CommentRepository) UpdateStatusCAS(ctx context.Context, id string, from, to models.CommentStatus, actor string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3, status_changed_by = $4, status_changed_at = $5
		WHERE id = $1 AND status = $2
	`, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, from, to, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update comment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "comment", ID: id}
	}

	return nil
}

// SetDOI records the minted identifier and its registration state
func (r *CommentRepository) SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET doi = $2, doi_status = $3 WHERE id = $1`, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, doi, status)
	if err != nil {
		return fmt.Errorf("set comment doi: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("comment %s not found", id)}
	}

	return nil
}

// UpdateDOIStatus moves only the identifier state
func (r *CommentRepository) UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET doi_status = $2 WHERE id = $1`, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update comment doi status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("comment %s not found", id)}
	}

	return nil
}

// ListDOIErrored returns published comments awaiting a registration retry
func (r *CommentRepository) ListDOIErrored(ctx context.Context, limit int) ([]models.Comment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = $1 AND doi_status = $2
		ORDER BY status_changed_at ASC
		LIMIT $3
	`, commentColumns, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, models.CommentPublished, models.DOIStatusError, limit)
	if err != nil {
		return nil, fmt.Errorf("list doi-errored comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, *c)
	}

	return comments, rows.Err()
}

// UpdateBody replaces the body of a draft comment on resubmission
func (r *CommentRepository) UpdateBody(ctx context.Context, id, body string) error {
	query := fmt.Sprintf(`UPDATE %s SET body = $2 WHERE id = $1 AND status = $3`, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, body, models.CommentDraft)
	if err != nil {
		return fmt.Errorf("update comment body: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "comment", ID: id}
	}

	return nil
}

// MarkRetracted soft-marks a comment. The row and its DOI survive.
func (r *CommentRepository) MarkRetracted(ctx context.Context, id, actor string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET retracted = TRUE, status_changed_by = $2, status_changed_at = $3
		WHERE id = $1 AND NOT retracted
	`, r.tables.Comments)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark comment retracted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "comment", ID: id}
	}

	return nil
}

// CreateModeration stores a decision record
func (r *CommentRepository) CreateModeration(ctx context.Context, m *models.CommentModeration) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.DecidedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, comment_id, moderator, decision, reason, decided_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, r.tables.CommentModerations)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, m.ID, m.CommentID, m.Moderator, m.Decision, m.Reason, m.DecidedAt)
	if err != nil {
		return fmt.Errorf("create moderation record: %w", err)
	}

	return nil
}

// GetModeration returns the latest decision for a comment
func (r *CommentRepository) GetModeration(ctx context.Context, commentID string) (*models.CommentModeration, error) {
	query := fmt.Sprintf(`
		SELECT id, comment_id, moderator, decision, COALESCE(reason, ''), decided_at
		FROM %s
		WHERE comment_id = $1
		ORDER BY decided_at DESC
		LIMIT 1
	`, r.tables.CommentModerations)

	var m models.CommentModeration
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, commentID).Scan(
		&m.ID, &m.CommentID, &m.Moderator, &m.Decision, &m.Reason, &m.DecidedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("no moderation record for comment %s", commentID)}
		}
		return nil, fmt.Errorf("get moderation record: %w", err)
	}

	return &m, nil
}
