package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// AuditRepository implements the append-only audit log. No update or
// delete statement exists against the table by construction.
type AuditRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(config *RepositoryConfig) repositories.AuditRepository {
	return &AuditRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append inserts one audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	var detail []byte
	if entry.Detail != nil {
		var err error
		detail, err = json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, actor, action, entity_kind, entity_id, from_status, to_status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`, r.tables.AuditLog)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		entry.ID, entry.Actor, entry.Action, entry.EntityKind, entry.EntityID,
		entry.FromStatus, entry.ToStatus, detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}

// ListByEntity returns an entity's audit trail, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, actor, action, entity_kind, entity_id, COALESCE(from_status, ''),
			COALESCE(to_status, ''), detail, created_at
		FROM %s
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, r.tables.AuditLog)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, entityKind, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var detail []byte
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntityKind,
			&entry.EntityID, &entry.FromStatus, &entry.ToStatus, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
