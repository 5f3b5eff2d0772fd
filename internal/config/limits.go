package config

import "time"

const (
	// MaxAICommentsPerVersion caps accepted+pending AI comments on a
	// single document version. Pending AI suggestions count too.
	MaxAICommentsPerVersion = 10

	// MaxAICommentsPerSection caps AI comments per distinct section
	// reference within a version.
	MaxAICommentsPerSection = 2

	// MaxHumanCommentsPerSectionDay caps human comments per
	// (user, section, calendar day) tuple.
	MaxHumanCommentsPerSectionDay = 2

	// MaxCommentBodyLength keeps bodies inside the TEXT column's
	// practical bounds and the moderation queue readable.
	MaxCommentBodyLength = 10000

	// MaxReferencesPerComment bounds the citation list.
	MaxReferencesPerComment = 25
)

const (
	// ExternalCallTimeout bounds every single DOI or model-provider
	// call. Timeouts are transient failures, retried with backoff,
	// never surfaced as fatal.
	ExternalCallTimeout = 10 * time.Second

	// ExternalCallRetries is the bounded retry count for external
	// calls on the publish path.
	ExternalCallRetries = 3

	// ExternalCallBackoff is the initial backoff; it doubles per
	// attempt (500ms, 1s, 2s).
	ExternalCallBackoff = 500 * time.Millisecond

	// ModelCallTimeout bounds suggestion generation, which is the
	// slowest external call in the system.
	ModelCallTimeout = 60 * time.Second
)
