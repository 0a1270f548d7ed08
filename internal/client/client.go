package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/manifest-network/vaultctl/internal/metrics"
)

const (
	defaultRequestTimeout = 30 * time.Second
	retryWaitTime         = 250 * time.Millisecond
	retryMaxWaitTime      = 5 * time.Second
)

// RPCClient is a Solana JSON-RPC 2.0 client.
// Reads are retried on transport errors and 5xx/429 responses; sends never are.
type RPCClient struct {
	Endpoint string

	http        *resty.Client
	httpNoRetry *resty.Client
	nextID      atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// NewRPCClient creates a client for endpoint retrying reads up to maxRetries times.
func NewRPCClient(endpoint string, maxRetries uint) *RPCClient {
	retrying := resty.New().
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(int(maxRetries)).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError)
		})

	single := resty.New().
		SetTimeout(defaultRequestTimeout).
		SetHeader("Content-Type", "application/json")

	return &RPCClient{
		Endpoint:    endpoint,
		http:        retrying,
		httpNoRetry: single,
	}
}

// call performs a JSON-RPC request and decodes its result into out.
func (c *RPCClient) call(ctx context.Context, retry bool, method string, out any, params ...any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveRPC(method, started, err) }()

	httpClient := c.httpNoRetry
	if retry {
		httpClient = c.http
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	resp, err := httpClient.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s request failed: HTTP %s", method, resp.Status())
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
