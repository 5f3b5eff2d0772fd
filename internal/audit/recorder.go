// Package audit records every state transition, moderation decision
// and model invocation as an immutable log entry.
package audit

import (
	"context"
	"log/slog"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
)

// Recorder writes audit entries. A failed write is logged but never
// fails the operation being audited; the store is the authority.
type Recorder struct {
	repo   repositories.AuditRepository
	logger *slog.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo repositories.AuditRepository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends one entry.
func (r *Recorder) Record(ctx context.Context, entry models.AuditEntry) {
	if err := r.repo.Append(ctx, &entry); err != nil {
		r.logger.Error("audit append failed",
			"action", entry.Action,
			"entity_kind", entry.EntityKind,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// Transition is shorthand for a status-change entry.
func (r *Recorder) Transition(ctx context.Context, actor, action, entityKind, entityID, from, to string) {
	r.Record(ctx, models.AuditEntry{
		Actor:      actor,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
	})
}

// Trail returns an entity's audit history.
func (r *Recorder) Trail(ctx context.Context, entityKind, entityID string, limit int) ([]models.AuditEntry, error) {
	return r.repo.ListByEntity(ctx, entityKind, entityID, limit)
}
