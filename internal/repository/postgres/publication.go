package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// PublicationRepository implements repositories.PublicationRepository
type PublicationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewPublicationRepository creates a new publication repository
func NewPublicationRepository(config *RepositoryConfig) repositories.PublicationRepository {
	return &PublicationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create creates a new publication
func (r *PublicationRepository) Create(ctx context.Context, pub *models.Publication) error {
	if pub.ID == "" {
		pub.ID = uuid.NewString()
	}
	pub.CreatedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, short_title, meta_doi, created_by, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, r.tables.Publications)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		pub.ID, pub.Title, pub.ShortTitle, pub.MetaDOI, pub.CreatedBy, pub.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("publication %q already exists: %w", pub.Title, domain.ErrStateConflict)
		}
		return fmt.Errorf("create publication: %w", err)
	}

	return nil
}

// GetByID retrieves a publication by ID
func (r *PublicationRepository) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(short_title, ''), COALESCE(meta_doi, ''), created_by, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Publications)

	var pub models.Publication
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&pub.ID, &pub.Title, &pub.ShortTitle, &pub.MetaDOI, &pub.CreatedBy, &pub.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("publication %s not found", id)}
		}
		return nil, fmt.Errorf("get publication: %w", err)
	}

	return &pub, nil
}

// List returns publications ordered by creation time
func (r *PublicationRepository) List(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(short_title, ''), COALESCE(meta_doi, ''), created_by, created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, r.tables.Publications)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var pubs []models.Publication
	for rows.Next() {
		var pub models.Publication
		if err := rows.Scan(&pub.ID, &pub.Title, &pub.ShortTitle, &pub.MetaDOI, &pub.CreatedBy, &pub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		pubs = append(pubs, pub)
	}

	return pubs, rows.Err()
}

// SetMetaDOI assigns the grouping identifier once. A row that already
// carries a different meta DOI is left alone and the call fails.
func (r *PublicationRepository) SetMetaDOI(ctx context.Context, id, doi string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET meta_doi = $2
		WHERE id = $1 AND (meta_doi IS NULL OR meta_doi = $2)
	`, r.tables.Publications)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, doi)
	if err != nil {
		return fmt.Errorf("set meta doi: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "publication", ID: id}
	}

	return nil
}
