// Package rpc provides a JSON-RPC 2.0 HTTP client with bounded retry.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cryptomart/indexer/internal/indexing/metrics"
)

// Client is a JSON-RPC client bound to a single provider endpoint.
type Client struct {
	name       string
	url        string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient creates a JSON-RPC client. A zero retry config falls back to
// DefaultRetryConfig.
func NewClient(name, url string, timeout time.Duration, retry RetryConfig) *Client {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig
	}
	return &Client{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// Call executes a single JSON-RPC request and decodes the result.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(c.name, method).Inc()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "network").Inc()
		return nil, &TransientError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	metrics.RPCLatency.WithLabelValues(c.name, method).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "http").Inc()
		return nil, &TransientError{Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "http").Inc()
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "network").Inc()
		return nil, &TransientError{Err: fmt.Errorf("read body failed: %w", err)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "malformed").Inc()
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if rpcResp.Error != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, "rpc").Inc()
		return nil, rpcResp.Error
	}

	var result any
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			metrics.RPCErrorsTotal.WithLabelValues(c.name, "malformed").Inc()
			return nil, fmt.Errorf("malformed result: %w", err)
		}
	}
	return result, nil
}

// CallWithRetry executes a call with the client's retry policy.
func (c *Client) CallWithRetry(ctx context.Context, method string, params []any) (any, error) {
	return CallWithRetry(ctx, c, method, params, c.retry)
}
