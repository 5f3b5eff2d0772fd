package models

import "time"

// AuditEntry is one immutable line of the audit log. Entries are only
// ever inserted; there is no update or delete path.
type AuditEntry struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Audit actions. Kept as constants so log queries stay greppable.
const (
	ActionVersionSubmitted   = "version.submitted"
	ActionReviewerInvited    = "reviewer.invited"
	ActionReviewerResponded  = "reviewer.responded"
	ActionReviewCompleted    = "version.review_completed"
	ActionVersionPublished   = "version.published"
	ActionVersionRolledBack  = "version.rolled_back"
	ActionRevisionCreated    = "version.revision_created"
	ActionDOIRequested       = "doi.requested"
	ActionDOIFindable        = "doi.findable"
	ActionDOIFailed          = "doi.failed"
	ActionCommentSubmitted   = "comment.submitted"
	ActionCommentModerated   = "comment.moderated"
	ActionCommentPublished   = "comment.published"
	ActionCommentRetracted   = "comment.retracted"
	ActionSuggestionGenerate = "suggestion.generated"
	ActionSuggestionApproved = "suggestion.approved"
	ActionSuggestionRejected = "suggestion.rejected"
)
