// Package httptransport is the default graphcache.Transport: it POSTs a
// {query, variables} body to a single GraphQL HTTP endpoint and decodes
// the standard {data, errors} envelope, the way the teacher's own HTTP
// client call sites build a request and check the status code before
// touching the body.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shashiranjanraj/graphcache/pkg/logger"
)

// Transport POSTs queries and mutations to a single GraphQL endpoint.
type Transport struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithClient overrides the default *http.Client (10s timeout).
func WithClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithHeader attaches a static header (e.g. Authorization) to every
// request this Transport sends.
func WithHeader(key, value string) Option {
	return func(t *Transport) { t.headers[key] = value }
}

// New builds a Transport that posts to endpoint.
func New(endpoint string, opts ...Option) *Transport {
	t := &Transport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		headers:  map[string]string{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type responseBody struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Execute implements graphcache.Transport.
func (t *Transport) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(requestBody{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("httptransport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httptransport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httptransport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httptransport: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		logger.Warn("httptransport: non-2xx response", "status", resp.StatusCode, "body", string(raw))
		return nil, fmt.Errorf("httptransport: server returned %d", resp.StatusCode)
	}

	var decoded responseBody
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("httptransport: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("httptransport: server error: %s", decoded.Errors[0].Message)
	}
	return decoded.Data, nil
}
