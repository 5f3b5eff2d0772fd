package repositories

import (
	"context"

	"livingdoc/internal/domain/models"
)

// AuditRepository is the append-only audit log store. There is
// deliberately no update or delete method.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]models.AuditEntry, error)
}
