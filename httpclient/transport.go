/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/multisig/chainfetch/scheduler"
)

// RetryAttemptHeader tells the remote service how many times the request has been retried.
const RetryAttemptHeader = "X-Retry-Attempt"

// maxErrorBodySize limits how much of a failed response is kept in UnexpectedStatusError.
const maxErrorBodySize = 512

// UnexpectedStatusError is returned by Transport.Call for responses with a non-2xx status.
type UnexpectedStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *UnexpectedStatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// Transport performs GET requests to BaseURL + target.
// It implements scheduler.Transport, so the HTTP status is the only signal of success.
type Transport struct {
	Client  *http.Client
	BaseURL string
}

var _ scheduler.Transport[string, []byte] = (*Transport)(nil)

// NewTransport creates a Transport over a client built by New.
func NewTransport(cfg *Config, opts Opts) (*Transport, error) {
	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	client, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Transport{Client: client, BaseURL: cfg.BaseURL}, nil
}

// Call implements scheduler.Transport.
func (t *Transport) Call(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if attempt := scheduler.GetAttemptFromContext(ctx); attempt > 1 {
		req.Header.Set(RetryAttemptHeader, strconv.Itoa(attempt-1))
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &UnexpectedStatusError{StatusCode: resp.StatusCode, Body: body}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
