package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"livingdoc/internal/httputil"
)

// Recovery converts a panic anywhere down the chain into a 500
// problem response. The log entry carries the request coordinates and
// the client's correlation id so a crash can be matched to the call
// that caused it.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				logger.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Header.Get("X-Request-ID"),
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)

				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
