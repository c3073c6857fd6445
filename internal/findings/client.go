// Package findings is the JSON/HTTP client for the findings service: report
// creation, query fetch, and evidence posts.
package findings

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

	"github.com/jward/sitterscan"
)

const (
	DefaultBaseURL = "http://localhost:8080/api/v1"
	DefaultTimeout = 30 * time.Second
)

// Operation names carried by ServiceError.
const (
	OpInitiateReport = "initiate-code-scan-report"
	OpFetchQueries   = "get-preloaded-queries"
	OpPostEvidence   = "post-evidence"
)

// ErrMalformedResponse is wrapped when a success response lacks the
// expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// Client talks to the findings service for one organization.
type Client struct {
	baseURL        string
	apiKey         string
	organizationID string
	timeout        time.Duration
	httpClient     *http.Client
}

var _ sitterscan.FindingsService = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the service base URL, e.g. https://host/api/v1.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. The timeout option is
// ignored when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client authenticating with apiKey.
func NewClient(apiKey, organizationID string, opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		apiKey:         apiKey,
		organizationID: organizationID,
		timeout:        DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

type initiateResponse struct {
	ReportID *string `json:"report_id"`
}

// InitiateReport opens a new scan report and returns its identifier.
func (c *Client) InitiateReport(ctx context.Context, req sitterscan.ReportRequest) (string, error) {
	var resp initiateResponse
	if err := c.do(ctx, OpInitiateReport, http.MethodPost, c.orgPath("rpc", "initiate-code-scan-report")+"/", req, &resp); err != nil {
		return "", err
	}
	if resp.ReportID == nil {
		return "", fmt.Errorf("findings: %s: missing report_id: %w", OpInitiateReport, ErrMalformedResponse)
	}
	return *resp.ReportID, nil
}

type queriesResponse struct {
	TreeSitterQueries json.RawMessage `json:"TreeSitterQueries"`
}

// FetchQueries returns the active query set for reportID.
func (c *Client) FetchQueries(ctx context.Context, reportID string) ([]sitterscan.StructuralQuery, error) {
	var resp queriesResponse
	path := c.orgPath("rpc", "get-preloaded-queries", url.PathEscape(reportID))
	if err := c.do(ctx, OpFetchQueries, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(resp.TreeSitterQueries)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("findings: %s: TreeSitterQueries is not an array: %w", OpFetchQueries, ErrMalformedResponse)
	}
	var queries []sitterscan.StructuralQuery
	if err := json.Unmarshal(raw, &queries); err != nil {
		return nil, fmt.Errorf("findings: %s: decode queries: %w", OpFetchQueries, errors.Join(ErrMalformedResponse, err))
	}
	return queries, nil
}

// PostEvidence reports one evidence payload.
func (c *Client) PostEvidence(ctx context.Context, payload sitterscan.EvidencePayload) error {
	return c.do(ctx, OpPostEvidence, http.MethodPost, c.orgPath("evidence"), payload, nil)
}

func (c *Client) orgPath(parts ...string) string {
	return c.baseURL + "/org/" + url.PathEscape(c.organizationID) + "/" + strings.Join(parts, "/")
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Any non-2xx status becomes a *ServiceError.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("findings: %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("findings: %s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "APIKey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("findings: %s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("findings: %s: decode response: %w", op, errors.Join(ErrMalformedResponse, err))
	}
	return nil
}
