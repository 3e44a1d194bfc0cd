package serveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evalgo/eve-build/expr/exhash"
)

// HTTPClientConfig configures an HTTPClient: base URL, per-request
// timeout, and retry policy, mirroring the retry/backoff knobs the
// teacher's http.Request carries (RetryCount, RetryBackoff).
type HTTPClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	RetryBackoff  time.Duration
	HTTPTransport http.RoundTripper
}

// DefaultHTTPClientConfig returns an HTTPClientConfig with sensible
// defaults: a 30s timeout, two retries with exponential backoff starting
// at 200ms.
func DefaultHTTPClientConfig(baseURL string) HTTPClientConfig {
	return HTTPClientConfig{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		RetryCount:   2,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// HTTPClient implements Client by calling an HTTP-over-chi serveapi
// server (serveapi.Server). A binary can inject it as
// Analyzer.ServeClient; no binary in this repository does, so the field
// keeps its nil "no serve endpoint" value.
type HTTPClient struct {
	config HTTPClientConfig
	http   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds an HTTPClient from config.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	return &HTTPClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout, Transport: config.HTTPTransport},
	}
}

func (c *HTTPClient) RetrieveTreeFromArchive(ctx context.Context, req RetrieveTreeRequest) (RetrieveTreeResponse, error) {
	body, err := json.Marshal(retrieveTreeRequestWire{ArchiveDigest: req.ArchiveDigest.String()})
	if err != nil {
		return RetrieveTreeResponse{}, fmt.Errorf("encoding retrieve-tree request: %w", err)
	}
	var wire retrieveTreeResponseWire
	if err := c.post(ctx, "/v1/retrieve-tree-from-archive", body, &wire); err != nil {
		return RetrieveTreeResponse{}, err
	}
	resp := RetrieveTreeResponse{Found: wire.Found}
	if wire.Found {
		treeID, err := exhash.FromHex(wire.TreeID)
		if err != nil {
			return RetrieveTreeResponse{}, fmt.Errorf("decoding resolved tree id: %w", err)
		}
		resp.TreeID = treeID
	}
	return resp, nil
}

func (c *HTTPClient) ServeTarget(ctx context.Context, req TargetRequest) (ServeTargetResponse, error) {
	body, err := encodeTargetRequest(req)
	if err != nil {
		return ServeTargetResponse{}, err
	}
	var wire serveTargetResponseWire
	if err := c.post(ctx, "/v1/serve-target", body, &wire); err != nil {
		return ServeTargetResponse{}, err
	}
	resp := ServeTargetResponse{Found: wire.Found}
	if wire.Found {
		digest, err := exhash.FromHex(wire.ResultDigest)
		if err != nil {
			return ServeTargetResponse{}, fmt.Errorf("decoding cached result digest: %w", err)
		}
		resp.ResultDigest = digest
	}
	return resp, nil
}

func (c *HTTPClient) ServeTargetVariables(ctx context.Context, req TargetRequest) (ServeTargetVariablesResponse, error) {
	body, err := encodeTargetRequest(req)
	if err != nil {
		return ServeTargetVariablesResponse{}, err
	}
	var wire serveTargetVariablesResponseWire
	if err := c.post(ctx, "/v1/serve-target-variables", body, &wire); err != nil {
		return ServeTargetVariablesResponse{}, err
	}
	return ServeTargetVariablesResponse{Variables: wire.Variables, Found: wire.Found}, nil
}

// post executes a POST of body to c.config.BaseURL+path, retrying on
// transport and 5xx failures per the configured retry policy, and
// decodes the 2xx response into out.
func (c *HTTPClient) post(ctx context.Context, path string, body []byte, out interface{}) error {
	attempts := c.config.RetryCount + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(c.config.RetryBackoff * time.Duration(uint(1)<<uint(attempt-1)))
		}
		err := c.postOnce(ctx, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if statusErr, ok := err.(*statusError); ok && statusErr.status < 500 {
			return err
		}
	}
	return fmt.Errorf("serveapi request to %s failed after %d attempts: %w", path, attempts, lastErr)
}

func (c *HTTPClient) postOnce(ctx context.Context, path string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building serveapi request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("serveapi request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("reading serveapi response: %w", err)
	}

	if httpResp.StatusCode/100 != 2 {
		var errWire errorResponseWire
		_ = json.Unmarshal(respBody, &errWire)
		return &statusError{status: httpResp.StatusCode, message: errWire.Error}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding serveapi response: %w", err)
	}
	return nil
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("serveapi: HTTP %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("serveapi: HTTP %d", e.status)
}
