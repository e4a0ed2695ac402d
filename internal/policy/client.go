// Package policy forwards documents to an Open Policy Agent server and
// returns its decision.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Config holds the HTTP client settings used to reach the policy server.
type Config struct {
	// Server is the policy server address in host:port form.
	Server string
	// Total timeout for the entire request. A context deadline can still
	// override this.
	Timeout         time.Duration
	DialTimeout     time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
}

// DefaultConfig returns sensible client settings for the given server.
func DefaultConfig(server string) Config {
	return Config{
		Server:          server,
		Timeout:         10 * time.Second,
		DialTimeout:     2 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxIdleConns:    20,
	}
}

// Decision is the policy server's answer together with what was sent.
type Decision struct {
	Endpoint string          `json:"policy_endpoint"`
	Sent     json.RawMessage `json:"sent"`
	Result   json.RawMessage `json:"result"`
}

// Client evaluates policies against a remote OPA server.
type Client struct {
	server string
	http   *http.Client
}

// New builds a Client with its own transport.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     dialer.DialContext,
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}
	return &Client{
		server: cfg.Server,
		http:   &http.Client{Transport: tr, Timeout: cfg.Timeout},
	}
}

// Endpoint returns the data API URL for policy. Slashes separate package
// path segments, as in OPA's data API.
func (c *Client) Endpoint(policy string) string {
	segments := strings.Split(strings.Trim(policy, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("http://%s/v1/data/%s", c.server, strings.Join(segments, "/"))
}

// Evaluate posts input wrapped as {"input": ...} to the policy endpoint and
// returns the "result" field verbatim, or JSON null when it is absent.
// Transport failures and non-2xx answers are returned as errors; there are
// no retries.
func (c *Client) Evaluate(ctx context.Context, policy string, input json.RawMessage) (Decision, error) {
	endpoint := c.Endpoint(policy)
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	payload, err := json.Marshal(struct {
		Input json.RawMessage `json:"input"`
	}{Input: input})
	if err != nil {
		return Decision{}, fmt.Errorf("encode policy input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("build policy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("post to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("read policy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Decision{}, fmt.Errorf("policy server %s answered %d: %s", endpoint, resp.StatusCode, bytes.TrimSpace(body))
	}
	if !gjson.ValidBytes(body) {
		return Decision{}, fmt.Errorf("policy server %s returned invalid JSON", endpoint)
	}

	result := json.RawMessage("null")
	if r := gjson.GetBytes(body, "result"); r.Exists() {
		result = json.RawMessage(r.Raw)
	}

	return Decision{Endpoint: endpoint, Sent: input, Result: result}, nil
}
