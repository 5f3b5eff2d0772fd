package models

import "time"

// ReviewProcessStatus is the state of a version's peer review.
type ReviewProcessStatus string

const (
	ReviewPending    ReviewProcessStatus = "pending"
	ReviewInProgress ReviewProcessStatus = "in_progress"
	ReviewCompleted  ReviewProcessStatus = "completed"
)

// ReviewerState tracks a single reviewer's participation.
type ReviewerState string

const (
	ReviewerInvited       ReviewerState = "invited"
	ReviewerAccepted      ReviewerState = "accepted"
	ReviewerDeclined      ReviewerState = "declined"
	ReviewerDoneReviewing ReviewerState = "completed"
)

// ReviewProcess tracks assignment and completion of peer review for
// one DocumentVersion. Owned exclusively by that version.
type ReviewProcess struct {
	ID             string              `json:"id"`
	VersionID      string              `json:"version_id"`
	HandlingEditor string              `json:"handling_editor,omitempty"`
	Status         ReviewProcessStatus `json:"status"`
	Decision       string              `json:"decision,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Reviewer is one reviewer assigned to a ReviewProcess.
type Reviewer struct {
	ID          string        `json:"id"`
	ProcessID   string        `json:"process_id"`
	UserID      string        `json:"user_id"`
	State       ReviewerState `json:"state"`
	InvitedAt   time.Time     `json:"invited_at"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
