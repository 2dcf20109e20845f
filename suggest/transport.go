package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/a11ywatch/advisor"
)

// maxResponseBody bounds what is read from the backend.
const maxResponseBody = 1 << 20

// Transport carries one suggestion request to the backend.
type Transport interface {
	Suggest(ctx context.Context, req advisor.SuggestRequest) (advisor.SuggestResponse, error)
}

// StatusError is a non-2xx backend answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("suggest: backend status %d: %s", e.Code, e.Body)
}

// HTTPTransport POSTs JSON to the backend's suggest endpoint.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport creates a transport for url. A zero timeout means 30s.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{url: url, client: &http.Client{Timeout: timeout}}
}

// WithClient replaces the HTTP client (tests, custom TLS).
func (t *HTTPTransport) WithClient(c *http.Client) *HTTPTransport {
	t.client = c
	return t
}

func (t *HTTPTransport) Suggest(ctx context.Context, sr advisor.SuggestRequest) (advisor.SuggestResponse, error) {
	var out advisor.SuggestResponse

	body, err := json.Marshal(sr)
	if err != nil {
		return out, fmt.Errorf("suggest: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("suggest: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("suggest: do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return out, fmt.Errorf("suggest: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("suggest: decode response: %w", err)
	}
	return out, nil
}

// LocalTransport serves suggestions from an in-process advisor, with no
// network hop.
type LocalTransport struct {
	svc *advisor.Service
}

// NewLocalTransport wraps svc.
func NewLocalTransport(svc *advisor.Service) *LocalTransport {
	return &LocalTransport{svc: svc}
}

func (t *LocalTransport) Suggest(ctx context.Context, sr advisor.SuggestRequest) (advisor.SuggestResponse, error) {
	if err := ctx.Err(); err != nil {
		return advisor.SuggestResponse{}, err
	}
	return t.svc.Suggest(ctx, sr), nil
}
