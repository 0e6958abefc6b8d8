// Package kibana implements core.NodeClient against Kibana's task manager
// HTTP API.
package kibana

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

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
)

const (
	// RunNowPath is the task manager endpoint that runs a task immediately.
	RunNowPath = "api/task_manager/_run_now"
	// StatusPath answers once Kibana is up.
	StatusPath = "api/status"

	xsrfHeader = "kbn-xsrf"
	xsrfValue  = "elastask"

	maxErrorBody = 4 << 10
)

// Client sends requests to Kibana nodes. One client serves every node; the
// node address is taken from each call.
type Client struct {
	username string
	password string
	http     *http.Client
	logger   *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client authenticating with the given basic-auth pair.
func New(username, password string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunNow posts payload to the node's run-now endpoint. Any non-2xx reply is
// an error; the body of the reply is otherwise ignored.
func (c *Client) RunNow(ctx context.Context, node core.Node, payload core.RunNowPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding run-now for %s: %w", payload.ID, err)
	}
	target, err := Endpoint(node.Address, RunNowPath)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, target, body)
}

// Probe checks that the node answers its status endpoint with the
// configured credentials.
func (c *Client) Probe(ctx context.Context, node core.Node) error {
	target, err := Endpoint(node.Address, StatusPath)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, target, nil)
}

// Endpoint resolves path under the node address. A path on the address is
// kept as a prefix, so a Kibana served under /kibana works.
func Endpoint(address, path string) (string, error) {
	base, err := url.Parse(address)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return "", core.ErrValidation(core.CodeInvalidNode, fmt.Sprintf("node address %q is not an http(s) URL", address))
	}
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	base.RawPath = ""
	return base.String(), nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set(xsrfHeader, xsrfValue)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.ErrFromTransport(fmt.Sprintf("%s %s", method, req.URL.Redacted()), err)
	}
	defer resp.Body.Close()

	c.logger.Debug("kibana request",
		"method", method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return core.ErrFromStatus(core.CodeDispatchFailed, resp.StatusCode,
			fmt.Sprintf("%s %s: %d %s", method, req.URL.Redacted(), resp.StatusCode, msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
