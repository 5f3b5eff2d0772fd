// Package doi implements the consumed persistent-identifier boundary:
// a registry client with bounded, retried calls and the registrar
// that drives identifiers from draft to findable without ever
// blocking a publish.
package doi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"livingdoc/internal/config"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/metrics"
)

type correlationKey struct{}

// WithCorrelationID attaches a request correlation id that is sent to
// the registry on every call.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the attached id, minting one if absent.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Client talks to a DataCite-style DOI registry. All calls are
// idempotent by identifier and bounded by ExternalCallTimeout; a
// transient failure is retried with doubling backoff before being
// reported.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a registry client
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  cfg.DOIBaseURL,
		username: cfg.DOIUser,
		password: cfg.DOIPassword,
		http:     &http.Client{Timeout: config.ExternalCallTimeout},
		logger:   logger,
	}
}

type doiPayload struct {
	Data struct {
		Type       string         `json:"type"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
}

func newPayload(attrs map[string]any) doiPayload {
	var p doiPayload
	p.Data.Type = "dois"
	p.Data.Attributes = attrs
	return p
}

// do runs one registry call with bounded retries. Only transport
// errors and 5xx responses are retried; 4xx is the registry's final
// word.
func (c *Client) do(ctx context.Context, operation, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", operation, err)
		}
	}

	backoff := config.ExternalCallBackoff
	var lastErr error

	for attempt := 0; attempt < config.ExternalCallRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/vnd.api+json")
		req.Header.Set("X-Request-ID", CorrelationID(ctx))
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("doi call failed, retrying",
				"operation", operation, "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("registry returned %d", resp.StatusCode)
			c.logger.Warn("doi call failed, retrying",
				"operation", operation, "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		metrics.DOIRequests.WithLabelValues(operation, "ok").Inc()
		return resp, nil
	}

	metrics.DOIRequests.WithLabelValues(operation, "error").Inc()
	return nil, &domain.ExternalServiceError{Service: "doi-registry", Err: lastErr}
}

// CreateDraft registers a draft identifier. A duplicate is success:
// the identifier already exists and the call is idempotent.
func (c *Client) CreateDraft(ctx context.Context, doi string) (services.DOIRegistrationState, error) {
	payload := newPayload(map[string]any{"doi": doi})

	resp, err := c.do(ctx, "create_draft", http.MethodPost, "/dois", payload)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusCreated:
		return services.DOICreated, nil
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		// Duplicate-exists responses are success by construction.
		return services.DOIAlreadyExists, nil
	default:
		return "", &domain.ExternalServiceError{
			Service: "doi-registry",
			Err:     fmt.Errorf("create draft %s: status %d", doi, resp.StatusCode),
		}
	}
}

// UpdateMetadata pushes the attribute set for an identifier
func (c *Client) UpdateMetadata(ctx context.Context, doi string, attrs services.DOIMetadata) error {
	payload := newPayload(map[string]any{
		"titles":          []map[string]string{{"title": attrs.Title}},
		"creators":        creatorList(attrs.Creators),
		"publisher":       attrs.Publisher,
		"publicationYear": attrs.Year,
		"types":           map[string]string{"resourceTypeGeneral": attrs.ResourceType},
		"url":             attrs.URL,
	})

	resp, err := c.do(ctx, "update_metadata", http.MethodPut, "/dois/"+doi, payload)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &domain.ExternalServiceError{
			Service: "doi-registry",
			Err:     fmt.Errorf("update metadata %s: status %d", doi, resp.StatusCode),
		}
	}

	return nil
}

// MakeFindable requests the publish transition for an identifier
func (c *Client) MakeFindable(ctx context.Context, doi string) error {
	payload := newPayload(map[string]any{"event": "publish"})

	resp, err := c.do(ctx, "make_findable", http.MethodPut, "/dois/"+doi, payload)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &domain.ExternalServiceError{
			Service: "doi-registry",
			Err:     fmt.Errorf("make findable %s: status %d", doi, resp.StatusCode),
		}
	}

	return nil
}

// Withdraw hides a findable identifier
func (c *Client) Withdraw(ctx context.Context, doi string) error {
	payload := newPayload(map[string]any{"event": "hide"})

	resp, err := c.do(ctx, "withdraw", http.MethodPut, "/dois/"+doi, payload)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &domain.ExternalServiceError{
			Service: "doi-registry",
			Err:     fmt.Errorf("withdraw %s: status %d", doi, resp.StatusCode),
		}
	}

	return nil
}

// Resolve returns the HTTP status of the landing page registered for
// the identifier.
func (c *Client) Resolve(ctx context.Context, doi string) (int, error) {
	resp, err := c.do(ctx, "resolve", http.MethodGet, "/dois/"+doi+"/landing", nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	return resp.StatusCode, nil
}

func creatorList(names []string) []map[string]string {
	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]string{"name": name})
	}
	return out
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

var _ services.DOIService = (*Client)(nil)
