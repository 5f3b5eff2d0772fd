package models

import "time"

// SuggestionStatus is the lifecycle of an AI comment suggestion. A
// suggestion is never visible as a Comment until a human approves it.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

// AICommentSuggestion is a candidate comment produced by the
// suggestion engine. Approval (optionally with edits) creates a real
// Comment that references this record; rejection is terminal.
type AICommentSuggestion struct {
	ID        string           `json:"id"`
	VersionID string           `json:"version_id"`
	Body      string           `json:"body"`
	Anchor    Anchor           `json:"anchor"`
	Status    SuggestionStatus `json:"status"`

	Model      string  `json:"model"`
	PromptName string  `json:"prompt_name"`
	Confidence float64 `json:"confidence"`

	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SuggestionSource is a trust-annotated citation attached to a
// suggestion. A suggestion with no qualifying source is discarded
// before it is ever surfaced.
type SuggestionSource struct {
	ID           string     `json:"id"`
	SuggestionID string     `json:"suggestion_id"`
	Title        string     `json:"title"`
	CitationText string     `json:"citation_text,omitempty"`
	DOI          string     `json:"doi,omitempty"`
	TrustLevel   TrustLevel `json:"trust_level"`
}

// ContextDocument is a pre-approved retrieval source handed to the
// model. Only trust-annotated documents ever reach the prompt.
type ContextDocument struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Excerpt    string     `json:"excerpt"`
	DOI        string     `json:"doi,omitempty"`
	TrustLevel TrustLevel `json:"trust_level"`
}

// GenerationLog records one invocation of the model provider, kept
// regardless of outcome.
type GenerationLog struct {
	ID          string        `json:"id"`
	VersionID   string        `json:"version_id"`
	RequestedBy string        `json:"requested_by"`
	Model       string        `json:"model"`
	PromptName  string        `json:"prompt_name"`
	Prompt      string        `json:"prompt"`
	Output      string        `json:"output"`
	ContextIDs  []string      `json:"context_ids"`
	Duration    time.Duration `json:"duration"`
	TokenCount  int           `json:"token_count"`
	Err         string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
