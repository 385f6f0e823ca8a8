package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/aaroflow/erpkey/pkg/credential"
	"github.com/aaroflow/erpkey/pkg/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// Request is one outbound call to the remote system.
type Request struct {
	Endpoint string
	Method   string
	Query    url.Values
	Body     interface{}

	// Secret is the bearer credential authorizing the call.
	Secret string
}

// Response carries the remote system's answer. Body is raw JSON as returned.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Client dispatches requests against the remote ERP API. GET responses pass
// through an in-memory HTTP cache, so repeated lookups within a run do not
// hit the remote system again when it serves cacheable responses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a dispatcher for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		log: log,
	}
}

// NewClientWithHTTPClient creates a dispatcher over a caller-supplied HTTP
// client. Intended for tests injecting an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, log *logging.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// Invoke performs the call and maps transport and HTTP-level failures into a
// uniform error. The secret never appears in errors or logs.
func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Secret == "" {
		return nil, fmt.Errorf("request to %s has no credential", req.Endpoint)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Secret)
	httpReq.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.log.Debugf("dispatching %s %s (credential %s)",
		req.Method, req.Endpoint, credential.MaskSecret(req.Secret))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.Endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.Endpoint, err)
	}

	c.log.Debugf("%s %s returned HTTP %d (%d bytes)", req.Method, req.Endpoint, resp.StatusCode, len(data))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("erp api error: HTTP %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode),
			errorSnippet(resp.Header.Get("Content-Type"), data))
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// errorSnippet renders a response body short enough for an error message.
// HTML error pages are reduced to their visible text first.
func errorSnippet(contentType string, data []byte) string {
	text := strings.TrimSpace(string(data))
	if strings.Contains(contentType, "text/html") || strings.HasPrefix(text, "<") {
		text = htmlToText(data)
	}
	const limit = 500
	if len(text) > limit {
		text = text[:limit] + "…"
	}
	if text == "" {
		text = "(empty body)"
	}
	return text
}
