// Package policy implements capability-set authorization. Each
// operation declares the single capability it requires; the caller's
// set comes from its verified identity and is checked explicitly at
// the service boundary, never through ambient global state.
package policy

import "livingdoc/internal/domain"

// Capability names one permitted operation.
type Capability string

const (
	SubmitVersion       Capability = "submit_version"
	CompleteReview      Capability = "complete_review"
	PublishVersion      Capability = "publish_version"
	RollbackVersion     Capability = "rollback_version"
	ManageDiscussion    Capability = "manage_discussion"
	SubmitComment       Capability = "submit_comment"
	ModerateComment     Capability = "moderate_comment"
	RetractComment      Capability = "retract_comment"
	GenerateSuggestions Capability = "generate_suggestions"
	ReviewSuggestions   Capability = "review_suggestions"
)

// Set is a capability set.
type Set map[Capability]struct{}

// NewSet builds a set from capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Require returns ForbiddenError when the capability is missing.
func (s Set) Require(c Capability) error {
	if !s.Has(c) {
		return &domain.ForbiddenError{Capability: string(c)}
	}
	return nil
}

// Actor is a verified caller: identity plus capabilities. Handlers
// build it from the JWT claims; services never look further.
type Actor struct {
	UserID string
	Caps   Set
}

// roleGrants maps identity-provider roles to capabilities. This
// replaces the per-role boolean grid of older deployments.
var roleGrants = map[string][]Capability{
	"author":    {SubmitVersion, SubmitComment},
	"reviewer":  {SubmitComment},
	"moderator": {SubmitComment, ModerateComment, RetractComment, ReviewSuggestions},
	"editor": {
		SubmitVersion, CompleteReview, PublishVersion, ManageDiscussion,
		SubmitComment, ModerateComment, GenerateSuggestions, ReviewSuggestions,
	},
	"admin": {
		SubmitVersion, CompleteReview, PublishVersion, RollbackVersion,
		ManageDiscussion, SubmitComment, ModerateComment, RetractComment,
		GenerateSuggestions, ReviewSuggestions,
	},
}

// FromRoles folds a role list into one capability set. Unknown roles
// grant nothing.
func FromRoles(roles []string) Set {
	s := make(Set)
	for _, role := range roles {
		for _, c := range roleGrants[role] {
			s[c] = struct{}{}
		}
	}
	return s
}
