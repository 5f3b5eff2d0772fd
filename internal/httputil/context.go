package httputil

import (
	"context"
	"net/http"

	"livingdoc/internal/policy"
)

// Context key type to avoid collisions
type contextKey string

const actorKey contextKey = "actor"

// WithActor attaches the verified caller to the request context
func WithActor(r *http.Request, actor policy.Actor) *http.Request {
	ctx := context.WithValue(r.Context(), actorKey, actor)
	return r.WithContext(ctx)
}

// GetActor retrieves the verified caller; the zero Actor carries no
// capabilities, so a missing value fails every Require check.
func GetActor(r *http.Request) policy.Actor {
	actor, _ := r.Context().Value(actorKey).(policy.Actor)
	return actor
}
