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

// ReviewRepository implements repositories.ReviewRepository
type ReviewRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(config *RepositoryConfig) repositories.ReviewRepository {
	return &ReviewRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateProcess opens the review process for a version
func (r *ReviewRepository) CreateProcess(ctx context.Context, p *models.ReviewProcess) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.StartedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = models.ReviewPending
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, version_id, handling_editor, status, decision, started_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6)
	`, r.tables.ReviewProcesses)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, p.ID, p.VersionID, p.HandlingEditor, p.Status, p.Decision, p.StartedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("version %s already has a review process: %w", p.VersionID, domain.ErrStateConflict)
		}
		return fmt.Errorf("create review process: %w", err)
	}

	return nil
}

// GetProcessByVersion fetches the review process owned by a version
func (r *ReviewRepository) GetProcessByVersion(ctx context.Context, versionID string) (*models.ReviewProcess, error) {
	query := fmt.Sprintf(`
		SELECT id, version_id, COALESCE(handling_editor, ''), status, COALESCE(decision, ''), started_at, completed_at
		FROM %s
		WHERE version_id = $1
	`, r.tables.ReviewProcesses)

	var p models.ReviewProcess
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, versionID).Scan(
		&p.ID, &p.VersionID, &p.HandlingEditor, &p.Status, &p.Decision, &p.StartedAt, &p.CompletedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("no review process for version %s", versionID)}
		}
		return nil, fmt.Errorf("get review process: %w", err)
	}

	return &p, nil
}

// CompleteProcess finishes a review with the editor's decision text
func (r *ReviewRepository) CompleteProcess(ctx context.Context, processID, decision string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, decision = $3, completed_at = $4
		WHERE id = $1 AND status != $2
	`, r.tables.ReviewProcesses)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, processID, models.ReviewCompleted, decision, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete review process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.StateConflictError{Entity: "review_process", ID: processID}
	}

	return nil
}

// AddReviewer invites a reviewer to a process
func (r *ReviewRepository) AddReviewer(ctx context.Context, rev *models.Reviewer) error {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	rev.InvitedAt = time.Now().UTC()
	if rev.State == "" {
		rev.State = models.ReviewerInvited
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, process_id, user_id, state, invited_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.tables.Reviewers)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, rev.ID, rev.ProcessID, rev.UserID, rev.State, rev.InvitedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("reviewer already assigned: %w", domain.ErrStateConflict)
		}
		return fmt.Errorf("add reviewer: %w", err)
	}

	return nil
}

// UpdateReviewerState advances a reviewer through invited/accepted/declined/completed
func (r *ReviewRepository) UpdateReviewerState(ctx context.Context, reviewerID string, state models.ReviewerState) error {
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		UPDATE %s
		SET state = $2,
			accepted_at = CASE WHEN $2 = 'accepted' THEN $3 ELSE accepted_at END,
			completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END
		WHERE id = $1
	`, r.tables.Reviewers)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, reviewerID, state, now)
	if err != nil {
		return fmt.Errorf("update reviewer state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("reviewer %s not found", reviewerID)}
	}

	return nil
}

// ListReviewers returns the reviewers of a process
func (r *ReviewRepository) ListReviewers(ctx context.Context, processID string) ([]models.Reviewer, error) {
	query := fmt.Sprintf(`
		SELECT id, process_id, user_id, state, invited_at, accepted_at, completed_at
		FROM %s
		WHERE process_id = $1
		ORDER BY invited_at ASC
	`, r.tables.Reviewers)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list reviewers: %w", err)
	}
	defer rows.Close()

	var reviewers []models.Reviewer
	for rows.Next() {
		var rev models.Reviewer
		if err := rows.Scan(&rev.ID, &rev.ProcessID, &rev.UserID, &rev.State,
			&rev.InvitedAt, &rev.AcceptedAt, &rev.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan reviewer: %w", err)
		}
		reviewers = append(reviewers, rev)
	}

	return reviewers, rows.Err()
}
