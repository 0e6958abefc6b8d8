// Package elasticsearch implements core.TaskStore over the Elasticsearch
// REST API. Searches run with the admin credential pair and partial updates
// with the system-indices pair, which is what Kibana's task manager index
// requires.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
)

// maxErrorBody bounds how much of an error reply is read into a message.
const maxErrorBody = 4 << 10

// Credentials is a basic-auth pair.
type Credentials struct {
	Username string
	Password string
}

// Config describes the cluster and index to talk to.
type Config struct {
	Host    string
	Index   string
	Search  Credentials
	Write   Credentials
	Timeout time.Duration
}

// Client talks to one Elasticsearch cluster.
type Client struct {
	base   *url.URL
	index  string
	search Credentials
	write  Credentials
	http   *http.Client
	logger *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left as given.
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

// New creates a client. The host must be an absolute http(s) URL; a path
// on it is kept as a prefix for every request.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.Host)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, core.ErrValidation("INVALID_HOST", fmt.Sprintf("elasticsearch host %q is not an http(s) URL", cfg.Host))
	}
	if cfg.Index == "" {
		return nil, core.ErrValidation("INVALID_INDEX", "elasticsearch index is empty")
	}
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		base:   base,
		index:  cfg.Index,
		search: cfg.Search,
		write:  cfg.Write,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Index returns the index the client reads and writes.
func (c *Client) Index() string {
	return c.index
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID          string          `json:"_id"`
	SeqNo       *int64          `json:"_seq_no"`
	PrimaryTerm *int64          `json:"_primary_term"`
	Source      json.RawMessage `json:"_source"`
}

// Search returns up to size documents from the task index together with
// their sequence numbers.
func (c *Client) Search(ctx context.Context, size int) ([]core.Document, error) {
	q := url.Values{}
	q.Set("size", strconv.Itoa(size))
	q.Set("seq_no_primary_term", "true")

	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint(q, c.index, "_search"), c.search, nil, core.CodeSearchFailed, &resp); err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		doc := core.Document{ID: hit.ID, Source: hit.Source}
		if hit.SeqNo != nil && hit.PrimaryTerm != nil {
			doc.Version = &core.Version{SeqNo: *hit.SeqNo, PrimaryTerm: *hit.PrimaryTerm}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type updateRequest struct {
	Doc struct {
		Task core.TaskPatch `json:"task"`
	} `json:"doc"`
}

type updateResponse struct {
	ID          string `json:"_id"`
	Result      string `json:"result"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
}

// Update applies patch to the task object of document id. With a non-nil
// cond the write is rejected by the cluster unless the document is still at
// that version, which surfaces as a conflict error.
func (c *Client) Update(ctx context.Context, id string, patch core.TaskPatch, cond *core.Version) (core.Version, error) {
	var body updateRequest
	body.Doc.Task = patch
	payload, err := json.Marshal(body)
	if err != nil {
		return core.Version{}, fmt.Errorf("encoding update for %s: %w", id, err)
	}

	q := url.Values{}
	if cond != nil {
		q.Set("if_seq_no", strconv.FormatInt(cond.SeqNo, 10))
		q.Set("if_primary_term", strconv.FormatInt(cond.PrimaryTerm, 10))
	}

	var resp updateResponse
	err = c.do(ctx, http.MethodPost, c.endpoint(q, c.index, "_update", id), c.write, payload, core.CodeUpdateFailed, &resp)
	if err != nil {
		if core.IsCategory(err, core.ErrCatConflict) {
			return core.Version{}, core.ErrConflict(id).WithCause(err)
		}
		return core.Version{}, err
	}
	return core.Version{SeqNo: resp.SeqNo, PrimaryTerm: resp.PrimaryTerm}, nil
}

// Ping checks that the cluster answers and accepts the admin credentials.
func (c *Client) Ping(ctx context.Context) error {
	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	return c.do(ctx, http.MethodGet, c.endpoint(nil), c.search, nil, core.CodeSearchFailed, &info)
}

// Count returns the number of documents in the task index.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, c.index, "_count"), c.search, nil, core.CodeSearchFailed, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

type errorReply struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, target string, creds Credentials, body []byte, code string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.ErrFromTransport(fmt.Sprintf("%s %s", method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	c.logger.Debug("elasticsearch request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return core.ErrFromStatus(code, resp.StatusCode, replyMessage(method, req.URL.Path, resp.StatusCode, raw))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.ErrValidation(core.CodeUnexpectedReply,
			fmt.Sprintf("%s %s: unreadable reply", method, req.URL.Path)).WithCause(err)
	}
	return nil
}

func replyMessage(method, path string, status int, raw []byte) string {
	var reply errorReply
	if err := json.Unmarshal(raw, &reply); err == nil && reply.Error.Type != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", method, path, status, reply.Error.Type, reply.Error.Reason)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Sprintf("%s %s: %d %s", method, path, status, text)
}
