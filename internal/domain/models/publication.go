package models

import "time"

// VersionStatus is the lifecycle state of a DocumentVersion.
type VersionStatus string

const (
	VersionDraft       VersionStatus = "draft"
	VersionSubmitted   VersionStatus = "submitted"
	VersionUnderReview VersionStatus = "under_review"
	VersionAccepted    VersionStatus = "accepted"
	VersionRejected    VersionStatus = "rejected"
	VersionPublished   VersionStatus = "published"
)

// DOIStatus tracks identifier registration independently of the
// content lifecycle, so a registry outage never blocks publishing.
type DOIStatus string

const (
	DOIStatusNone       DOIStatus = ""
	DOIStatusDraft      DOIStatus = "draft"
	DOIStatusRegistered DOIStatus = "registered"
	DOIStatusFindable   DOIStatus = "findable"
	DOIStatusError      DOIStatus = "error"
)

// DiscussionStatus gates whether a version still accepts comments.
type DiscussionStatus string

const (
	DiscussionOpen      DiscussionStatus = "open"
	DiscussionClosed    DiscussionStatus = "closed"
	DiscussionWithdrawn DiscussionStatus = "withdrawn"
)

// Publication is the stable identity for a line of work. It is
// immutable after creation except for the meta-DOI that groups all of
// its versions.
type Publication struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ShortTitle string    `json:"short_title,omitempty"`
	MetaDOI    string    `json:"meta_doi,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentVersion is one revision of a Publication. History is
// immutable: once a version leaves draft, its content never changes.
// Rollbacks and revisions always create a new version with the next
// version number.
type DocumentVersion struct {
	ID            string        `json:"id"`
	PublicationID string        `json:"publication_id"`
	VersionNumber int           `json:"version_number"`
	Status        VersionStatus `json:"status"`
	DOI           string        `json:"doi,omitempty"`
	DOIStatus     DOIStatus     `json:"doi_status,omitempty"`

	// Content is opaque to the lifecycle core; the export boundary
	// reads it as-is.
	Content  string `json:"content"`
	Abstract string `json:"abstract,omitempty"`

	DiscussionStatus DiscussionStatus `json:"discussion_status"`

	// RevisedFromID links a revision back to the rejected or
	// published version it supersedes.
	RevisedFromID string `json:"revised_from_id,omitempty"`

	StatusChangedBy string    `json:"status_changed_by,omitempty"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// VersionAuthor is a byline entry on a DocumentVersion. Authors may
// exist without a user account (imported legacy material).
type VersionAuthor struct {
	ID          string `json:"id"`
	VersionID   string `json:"version_id"`
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
	Email       string `json:"email,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Order       int    `json:"order"`

	Corresponding bool `json:"corresponding"`
}

// ReviewOutcome is an editor's decision when completing review.
type ReviewOutcome string

const (
	OutcomeAccepted         ReviewOutcome = "accepted"
	OutcomeRejected         ReviewOutcome = "rejected"
	OutcomeRevisionRequired ReviewOutcome = "revision_required"
)
