package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// SuggestionRepository implements repositories.SuggestionRepository
type SuggestionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSuggestionRepository creates a new suggestion repository
func NewSuggestionRepository(config *RepositoryConfig) repositories.SuggestionRepository {
	return &SuggestionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const suggestionColumns = `id, version_id, body, COALESCE(section_ref, ''), line_start,
	line_end, status, model, prompt_name, confidence, COALESCE(reviewed_by, ''),
	reviewed_at, created_at`

func scanSuggestion(row pgx.Row) (*models.AICommentSuggestion, error) {
	var s models.AICommentSuggestion
	err := row.Scan(
		&s.ID, &s.VersionID, &s.Body, &s.Anchor.Section, &s.Anchor.LineStart,
		&s.Anchor.LineEnd, &s.Status, &s.Model, &s.PromptName, &s.Confidence,
		&s.ReviewedBy, &s.ReviewedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a suggestion with its trust-annotated sources
func (r *SuggestionRepository) Create(ctx context.Context, s *models.AICommentSuggestion, sources []models.SuggestionSource) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	if s.Status == "" {
		s.Status = models.SuggestionPending
	}

	executor := GetExecutor(ctx, r.pool)

	query := fmt.Sprintf(`
		INSERT INTO %s (id, version_id, body, section_ref, line_start, line_end,
			status, model, prompt_name, confidence, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
	`, r.tables.Suggestions)

	_, err := executor.Exec(ctx, query,
		s.ID, s.VersionID, s.Body, s.Anchor.Section, s.Anchor.LineStart, s.Anchor.LineEnd,
		s.Status, s.Model, s.PromptName, s.Confidence, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}

	for i := range sources {
		src := &sources[i]
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		src.SuggestionID = s.ID

		q := fmt.Sprintf(`
			INSERT INTO %s (id, suggestion_id, title, citation_text, doi, trust_level)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		`, r.tables.SuggestionSources)
		if _, err := executor.Exec(ctx, q, src.ID, src.SuggestionID, src.Title,
			src.CitationText, src.DOI, src.TrustLevel); err != nil {
			return fmt.Errorf("create suggestion source: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a suggestion by ID
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*models.AICommentSuggestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, suggestionColumns, r.tables.Suggestions)

	executor := GetExecutor(ctx, r.pool)
	s, err := scanSuggestion(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("suggestion %s not found", id)}
		}
		return nil, fmt.Errorf("get suggestion: %w", err)
	}

	return s, nil
}

// ListByVersion returns a version's suggestions, optionally filtered by status
func (r *SuggestionRepository) ListByVersion(ctx context.Context, versionID string, status models.SuggestionStatus) ([]models.AICommentSuggestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE version_id = $1`, suggestionColumns, r.tables.Suggestions)
	args := []interface{}{versionID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []models.AICommentSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, *s)
	}

	return suggestions, rows.Err()
}

// ListSources returns a suggestion's citations
func (r *SuggestionRepository) ListSources(ctx context.Context, suggestionID string) ([]models.SuggestionSource, error) {
	query := fmt.Sprintf(`
		SELECT id, suggestion_id, title, COALESCE(citation_text, ''), COALESCE(doi, ''), trust_level
		FROM %s
		WHERE suggestion_id = $1
	`, r.tables.SuggestionSources)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("list suggestion sources: %w", err)
	}
	defer rows.Close()

	var sources []models.SuggestionSource
	for rows.Next() {
		var src models.SuggestionSource
		if err := rows.Scan(&src.ID, &src.SuggestionID, &src.Title, &src.CitationText,
			&src.DOI, &src.TrustLevel); err != nil {
			return nil, fmt.Errorf("scan suggestion source: %w", err)
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// CountPending counts pending suggestions for a version
func (r *SuggestionRepository) CountPending(ctx context.Context, versionID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT count(*) FROM %s WHERE version_id = $1 AND status = $2
	`, r.tables.Suggestions)

	var n int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, versionID, models.SuggestionPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending suggestions: %w", err)
	}

	return n, nil
}

// CountPendingForSection counts pending suggestions on one anchor key
func (r *SuggestionRepository) CountPendingForSection(ctx context.Context, versionID, anchorKey string) (int, error) {
	query := fmt.Sprintf(`
		SELECT count(*) FROM %s
		WHERE version_id = $1 AND status = $2
			AND COALESCE(section_ref, 'lines:' || line_start || '-' || line_end) = $3
	`, r.tables.Suggestions)

	var n int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, versionID, models.SuggestionPending, anchorKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending suggestions for section: %w", err)
	}

	return n, nil
}

// ResolveCAS moves pending -> approved/rejected atomically
func (r *SuggestionRepository) ResolveCAS(ctx context.Context, id string, to models.SuggestionStatus, reviewer string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = $5
	`, r.tables.Suggestions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, to, reviewer, time.Now().UTC(), models.SuggestionPending)
	if err != nil {
		return fmt.Errorf("resolve suggestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "suggestion", ID: id}
	}

	return nil
}

// AppendLog records one provider invocation. Insert-only.
func (r *SuggestionRepository) AppendLog(ctx context.Context, log *models.GenerationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, version_id, requested_by, model, prompt_name, prompt,
			output, context_ids, duration_ms, token_count, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
	`, r.tables.GenerationLogs)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		log.ID, log.VersionID, log.RequestedBy, log.Model, log.PromptName, log.Prompt,
		log.Output, log.ContextIDs, log.Duration.Milliseconds(), log.TokenCount,
		log.Err, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append generation log: %w", err)
	}

	return nil
}

// ContextSourceRepository implements repositories.ContextSourceRepository
type ContextSourceRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewContextSourceRepository creates a new context source repository
func NewContextSourceRepository(config *RepositoryConfig) repositories.ContextSourceRepository {
	return &ContextSourceRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// trustRank orders trust levels for the minTrust cutoff.
var trustRank = map[models.TrustLevel]int{
	models.TrustLow:    1,
	models.TrustMedium: 2,
	models.TrustHigh:   3,
}

// ListForVersion returns the pre-approved retrieval corpus for a
// version at or above the requested trust level.
func (r *ContextSourceRepository) ListForVersion(ctx context.Context, versionID string, minTrust models.TrustLevel) ([]models.ContextDocument, error) {
	query := fmt.Sprintf(`
		SELECT id, title, excerpt, COALESCE(doi, ''), trust_level
		FROM %s
		WHERE version_id = $1
	`, r.tables.ContextSources)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("list context sources: %w", err)
	}
	defer rows.Close()

	minRank := trustRank[minTrust]
	var docs []models.ContextDocument
	for rows.Next() {
		var d models.ContextDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Excerpt, &d.DOI, &d.TrustLevel); err != nil {
			return nil, fmt.Errorf("scan context source: %w", err)
		}
		if trustRank[d.TrustLevel] >= minRank {
			docs = append(docs, d)
		}
	}

	return docs, rows.Err()
}
