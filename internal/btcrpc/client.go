// Package btcrpc is a JSON-RPC client (requests tagged "jsonrpc": "1.0",
// the dialect Bitcoin Core speaks) for an upstream Bitcoin Core node,
// used by the Block Fetcher and Prev-Output Prefetcher (SPEC_FULL.md §4.10).
package btcrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is a JSON-RPC 1.0 HTTP client speaking Bitcoin Core's dialect:
// HTTP Basic Auth (static user/password, or a rotating cookie file) and a
// "code: -5 / -8" style error convention for missing blocks and txs.
type Client struct {
	endpoint   string
	user       string
	password   string
	cookieFile string
	http       *http.Client
}

// Config holds the connection settings for New.
type Config struct {
	URL        string
	User       string
	Password   string
	CookieFile string
	Timeout    time.Duration
}

// New creates an RPC client targeting the given Bitcoin Core node.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.URL,
		user:       cfg.User,
		password:   cfg.Password,
		cookieFile: cfg.CookieFile,
		http:       &http.Client{Timeout: timeout},
	}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error is returned when bitcoind responds with a JSON-RPC error object.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bitcoind rpc error %d: %s", e.Code, e.Message)
}

// Standard Bitcoin Core RPC error codes the fetcher and prefetcher branch on.
const (
	ErrCodeInvalidAddressOrKey = -5
	ErrCodeInvalidParameter    = -8
	ErrCodeInWarmup            = -28
)

// IsNotFound reports whether err is a "block/tx not found" RPC error:
// code -5 or -8, or a message ending in "not found".
func IsNotFound(err error) bool {
	var rpcErr *Error
	if e, ok := err.(*Error); ok {
		rpcErr = e
	} else {
		return false
	}
	return rpcErr.Code == ErrCodeInvalidAddressOrKey ||
		rpcErr.Code == ErrCodeInvalidParameter ||
		strings.HasSuffix(rpcErr.Message, "not found")
}

// Call invokes method with params and unmarshals the result into result (if
// non-nil). Each call resolves auth fresh, since a cookie file's contents
// rotate whenever bitcoind restarts.
func (c *Client) Call(method string, params, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := request{JSONRPC: "1.0", Method: method, Params: params, ID: 1}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	user, pass, err := c.auth()
	if err != nil {
		return fmt.Errorf("resolving rpc auth: %w", err)
	}
	httpReq.SetBasicAuth(user, pass)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if rpcResp.Error != nil {
		return &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

func (c *Client) auth() (string, string, error) {
	if c.cookieFile != "" {
		data, err := os.ReadFile(c.cookieFile)
		if err != nil {
			return "", "", fmt.Errorf("reading cookie file: %w", err)
		}
		parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("malformed cookie file %s", c.cookieFile)
		}
		return parts[0], parts[1], nil
	}
	return c.user, c.password, nil
}
