package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"livingdoc/internal/auth"
	"livingdoc/internal/httputil"
	"livingdoc/internal/policy"
)

// Auth verifies the bearer token and attaches the caller as an Actor
// with its capability set. Requests without a valid token get a 401;
// capability checks happen downstream at the service boundary. Paths
// in skip (health probes, metrics scrapes) pass through unverified.
func Auth(verifier auth.Verifier, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("token rejected", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			actor := policy.Actor{
				UserID: claims.UserID(),
				Caps:   policy.FromRoles(claims.Roles),
			}

			next.ServeHTTP(w, httputil.WithActor(r, actor))
		})
	}
}
