package models

import (
	"fmt"
	"strings"
	"time"
)

// CommentTypeCode is one of the five fixed comment type codes.
type CommentTypeCode string

const (
	TypeScientificComment CommentTypeCode = "SC"
	TypeResponse          CommentTypeCode = "rSC"
	TypeErrorCorrection   CommentTypeCode = "ER"
	TypeAdditionalData    CommentTypeCode = "AD"
	TypeNewPublication    CommentTypeCode = "NP"
)

// CommentType describes one entry of the fixed vocabulary. ER is the
// only type that publishes without a DOI.
type CommentType struct {
	Code        CommentTypeCode `json:"code" yaml:"code"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	RequiresDOI bool            `json:"requires_doi" yaml:"requires_doi"`
}

// CommentStatus is the moderation lifecycle of a comment.
type CommentStatus string

const (
	CommentDraft       CommentStatus = "draft"
	CommentSubmitted   CommentStatus = "submitted"
	CommentUnderReview CommentStatus = "under_review"
	CommentAccepted    CommentStatus = "accepted"
	CommentRejected    CommentStatus = "rejected"
	CommentPublished   CommentStatus = "published"
)

// TrustLevel annotates a cited source.
type TrustLevel string

const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// Anchor ties a comment to a place in the document: a named section,
// a line range, or both.
type Anchor struct {
	Section   string `json:"section,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
}

// Empty reports whether the anchor points at nothing.
func (a Anchor) Empty() bool {
	return a.Section == "" && a.LineStart == 0 && a.LineEnd == 0
}

// Key returns the section-level identity used by per-section rate
// limits. Line-anchored comments fall back to their line range.
func (a Anchor) Key() string {
	if a.Section != "" {
		return a.Section
	}
	return fmt.Sprintf("lines:%d-%d", a.LineStart, a.LineEnd)
}

// Comment belongs to exactly one DocumentVersion and optionally
// references a parent comment by ID (rSC responses), forming a
// forest. Comments are never deleted; retraction is a soft mark so a
// DOI that was already minted keeps resolving.
type Comment struct {
	ID        string          `json:"id"`
	VersionID string          `json:"version_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Type      CommentTypeCode `json:"type"`
	Body      string          `json:"body"`
	Anchor    Anchor          `json:"anchor"`
	Status    CommentStatus   `json:"status"`
	DOI       string          `json:"doi,omitempty"`
	DOIStatus DOIStatus       `json:"doi_status,omitempty"`

	AIGenerated  bool   `json:"ai_generated"`
	SuggestionID string `json:"suggestion_id,omitempty"`
	Retracted    bool   `json:"retracted"`

	StatusChangedBy string    `json:"status_changed_by,omitempty"`
	StatusChangedAt time.Time `json:"status_changed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsQuestion reports whether the body satisfies the interrogative-form
// guideline. The rule applies to human and AI comments alike.
func (c *Comment) IsQuestion() bool {
	return strings.HasSuffix(strings.TrimSpace(c.Body), "?")
}

// CommentAuthor links a user to a comment they co-authored. Each
// comment has exactly one corresponding author.
type CommentAuthor struct {
	ID            string    `json:"id"`
	CommentID     string    `json:"comment_id"`
	UserID        string    `json:"user_id"`
	Corresponding bool      `json:"corresponding"`
	CreatedAt     time.Time `json:"created_at"`
}

// CommentReference is a source cited by a comment, with the trust
// level that drives its weighting.
type CommentReference struct {
	ID           string     `json:"id"`
	CommentID    string     `json:"comment_id"`
	Title        string     `json:"title"`
	Authors      string     `json:"authors,omitempty"`
	DOI          string     `json:"doi,omitempty"`
	URL          string     `json:"url,omitempty"`
	CitationText string     `json:"citation_text,omitempty"`
	TrustLevel   TrustLevel `json:"trust_level"`
}

// ConflictOfInterest is an optional declaration attached to a comment.
type ConflictOfInterest struct {
	CommentID   string `json:"comment_id"`
	Statement   string `json:"statement"`
	HasConflict bool   `json:"has_conflict"`
}

// ModerationDecision is the moderator's verdict on a comment.
type ModerationDecision string

const (
	DecisionApproved      ModerationDecision = "approved"
	DecisionRejected      ModerationDecision = "rejected"
	DecisionNeedsRevision ModerationDecision = "needs_revision"
)

// CommentModeration is the single decision record a moderated comment
// owns. A comment returned for revision gets a fresh record when it is
// moderated again.
type CommentModeration struct {
	ID        string             `json:"id"`
	CommentID string             `json:"comment_id"`
	Moderator string             `json:"moderator"`
	Decision  ModerationDecision `json:"decision"`
	Reason    string             `json:"reason,omitempty"`
	DecidedAt time.Time          `json:"decided_at"`
}
