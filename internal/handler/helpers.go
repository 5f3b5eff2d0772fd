package handler

import (
	"errors"
	"net/http"

	"livingdoc/internal/domain"
	"livingdoc/internal/httputil"
)

// handleError converts domain errors to HTTP responses. Errors that
// carry structure (violation lists, limit counters) surface it as
// extra problem-detail fields.
func handleError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		rateErr       *domain.RateLimitError
		httpErr       domain.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		httputil.RespondErrorWithExtras(w, http.StatusBadRequest, validationErr.Error(),
			map[string]interface{}{"violations": validationErr.Violations})
	case errors.As(err, &rateErr):
		httputil.RespondErrorWithExtras(w, http.StatusTooManyRequests, rateErr.Error(),
			map[string]interface{}{
				"rule":    rateErr.Rule,
				"current": rateErr.Current,
				"limit":   rateErr.Limit,
			})
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
