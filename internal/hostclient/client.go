// Package hostclient is the controller's typed client for the agent HTTP
// surface. Every request carries the signature headers; every failure is a
// *Error classified by kind so the engine can route it.
package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quenary/tugtainer/internal/api"
	"github.com/quenary/tugtainer/internal/clock"
	"github.com/quenary/tugtainer/internal/signing"
)

// DefaultTimeout is used when a host has no timeout configured.
const DefaultTimeout = 120 * time.Second

// Client talks to one agent.
type Client struct {
	baseURL string
	secret  string
	timeout time.Duration
	http    *http.Client
	clk     clock.Clock
}

// New creates a client for the agent at baseURL, e.g. "http://host:8410".
func New(baseURL, secret string, timeout time.Duration, clk clock.Clock) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		timeout: timeout,
		http:    &http.Client{},
		clk:     clk,
	}
}

// BaseURL returns the agent endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends one signed request and decodes the response into out (skipped
// when out is nil). The signature covers the path without the query string.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindProtocol, Detail: fmt.Sprintf("encode request: %v", err), cause: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindProtocol, Detail: err.Error(), cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range signing.Headers(c.secret, method, path, payload, c.clk.Now()) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Detail: fmt.Sprintf("%s %s exceeded %s", method, path, c.timeout), cause: err}
		}
		return &Error{Kind: KindTransport, Detail: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Detail: fmt.Sprintf("read response: %v", err), cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindProtocol, Status: resp.StatusCode, Detail: fmt.Sprintf("decode response: %v", err), cause: err}
	}
	return nil
}

func (c *Client) statusError(status int, data []byte) *Error {
	detail := strings.TrimSpace(string(data))
	var envelope api.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Detail != "" {
		detail = envelope.Detail
	}

	kind := KindEngine
	switch status {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusFailedDependency:
		kind = KindEngine
	case http.StatusInternalServerError:
		if strings.Contains(detail, "timed out") {
			kind = KindTimeout
		}
	}
	return &Error{Kind: kind, Status: status, Detail: detail}
}
