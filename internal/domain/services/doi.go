package services

import "context"

// DOIRegistrationState reports what the registry did with a draft
// request. A duplicate is success: the calls are idempotent by
// identifier.
type DOIRegistrationState string

const (
	DOICreated       DOIRegistrationState = "created"
	DOIAlreadyExists DOIRegistrationState = "already_exists"
)

// DOIMetadata is the attribute set pushed to the registry.
type DOIMetadata struct {
	Title        string   `json:"title"`
	Creators     []string `json:"creators"`
	Publisher    string   `json:"publisher"`
	Year         int      `json:"publication_year"`
	ResourceType string   `json:"resource_type"`
	URL          string   `json:"url"`
}

// DOIService is the consumed persistent-identifier boundary. All
// calls are idempotent by identifier; the caller supplies a request
// correlation id through the context (see doi.WithCorrelationID).
type DOIService interface {
	CreateDraft(ctx context.Context, doi string) (DOIRegistrationState, error)
	UpdateMetadata(ctx context.Context, doi string, attrs DOIMetadata) error
	MakeFindable(ctx context.Context, doi string) error
	Withdraw(ctx context.Context, doi string) error

	// Resolve returns the HTTP status of the landing page behind the
	// identifier.
	Resolve(ctx context.Context, doi string) (int, error)
}
