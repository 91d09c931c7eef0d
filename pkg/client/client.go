// Package client provides the Go SDK for the custody audit trail HTTP API.
// It is consumed by auditctl and by collaborating custody services that log
// events or run forensic queries.
package client

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
)

// Entry is an audit chain entry as returned by the API.
type Entry struct {
	ID                 string         `json:"id"`
	Timestamp          int64          `json:"timestamp"` // Unix nanoseconds
	EventType          string         `json:"event_type"`
	Actor              string         `json:"actor"`
	ResourceType       string         `json:"resource_type"`
	ResourceID         string         `json:"resource_id"`
	Action             string         `json:"action"`
	Details            string         `json:"details"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Hash               string         `json:"hash"`
	PreviousHash       string         `json:"previous_hash,omitempty"`
	ComplianceRelevant bool           `json:"compliance_relevant"`
	RetentionUntil     int64          `json:"retention_until,omitempty"`
}

// Report is a compliance report as returned by the API.
type Report struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	GeneratedAt int64  `json:"generated_at"`
	GeneratedBy string `json:"generated_by"`
	EntryCount  int    `json:"entry_count"`
	Summary     string `json:"summary"`
	Hash        string `json:"hash"`
	Signature   string `json:"signature,omitempty"`
}

// Settings are the audit trail configuration toggles.
type Settings struct {
	RetentionDays              int  `json:"retention_days"`
	AutoArchiveEnabled         bool `json:"auto_archive_enabled"`
	ComplianceReportingEnabled bool `json:"compliance_reporting_enabled"`
	RealTimeAlertsEnabled      bool `json:"real_time_alerts_enabled"`
	HashVerificationEnabled    bool `json:"hash_verification_enabled"`
	DigitalSignaturesEnabled   bool `json:"digital_signatures_enabled"`
	AuditAccessLogging         bool `json:"audit_access_logging"`
}

// LogEventRequest is the payload for LogEvent. The actor is always the
// authenticated caller; it is not part of the payload.
type LogEventRequest struct {
	EventType          string         `json:"event_type"`
	ResourceType       string         `json:"resource_type"`
	ResourceID         string         `json:"resource_id"`
	Action             string         `json:"action"`
	Details            string         `json:"details,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ComplianceRelevant bool           `json:"compliance_relevant"`
}

// VerifyResult is the outcome of a chain verification call.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	EntryID string `json:"entry_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// QueryOptions mirror the query parameters of GET /api/v1/entries.
type QueryOptions struct {
	EventTypes     []string
	ResourceTypes  []string
	Actors         []string
	ResourceIDs    []string
	Start, End     int64
	ComplianceOnly bool
	Offset, Limit  int
}

// Client is the audit trail SDK entry point.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken attaches a caller identity bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client connected to baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LogEvent records an audit entry and returns its id.
func (c *Client) LogEvent(ctx context.Context, req LogEventRequest) (string, error) {
	var out struct {
		EntryID string `json:"entry_id"`
	}
	if err := c.post(ctx, "/api/v1/events", req, &out); err != nil {
		return "", err
	}
	return out.EntryID, nil
}

// QueryEntries returns the entries matching opts, newest first. An empty
// slice may mean no matches or an unauthorized caller; the API does not
// distinguish the two.
func (c *Client) QueryEntries(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	q := url.Values{}
	setList := func(key string, vals []string) {
		if len(vals) > 0 {
			q.Set(key, strings.Join(vals, ","))
		}
	}
	setList("event_type", opts.EventTypes)
	setList("resource_type", opts.ResourceTypes)
	setList("actor", opts.Actors)
	setList("resource_id", opts.ResourceIDs)
	if opts.Start != 0 {
		q.Set("start", strconv.FormatInt(opts.Start, 10))
	}
	if opts.End != 0 {
		q.Set("end", strconv.FormatInt(opts.End, 10))
	}
	if opts.ComplianceOnly {
		q.Set("compliance_only", "true")
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/entries"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var out struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// GetEntry returns a single entry, or nil when it is absent or the caller
// is not an auditor.
func (c *Client) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var out struct {
		Entry *Entry `json:"entry"`
	}
	if err := c.get(ctx, "/api/v1/entries/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return out.Entry, nil
}

// VerifyChain replays the server-side chain and reports the result.
func (c *Client) VerifyChain(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.get(ctx, "/api/v1/chain/verify", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateReport creates a compliance report over [periodStart, periodEnd].
func (c *Client) GenerateReport(ctx context.Context, category string, periodStart, periodEnd int64) (string, error) {
	req := map[string]any{
		"category":     category,
		"period_start": periodStart,
		"period_end":   periodEnd,
	}
	var out struct {
		ReportID string `json:"report_id"`
	}
	if err := c.post(ctx, "/api/v1/reports", req, &out); err != nil {
		return "", err
	}
	return out.ReportID, nil
}

// GetReport returns a report, or nil when absent or unauthorized.
func (c *Client) GetReport(ctx context.Context, id string) (*Report, error) {
	var out struct {
		Report *Report `json:"report"`
	}
	if err := c.get(ctx, "/api/v1/reports/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return out.Report, nil
}

// ListReports returns all reports visible to the caller.
func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	var out struct {
		Reports []Report `json:"reports"`
	}
	if err := c.get(ctx, "/api/v1/reports", &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// AddAuditor grants auditor capability to identity.
func (c *Client) AddAuditor(ctx context.Context, identity, name string) error {
	req := map[string]string{"identity": identity, "name": name}
	return c.post(ctx, "/api/v1/auditors", req, nil)
}

// GetSettings returns the audit settings; non-auditors receive the
// all-disabled defaults.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var out struct {
		Settings *Settings `json:"settings"`
	}
	if err := c.get(ctx, "/api/v1/settings", &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// UpdateSettings replaces the audit settings.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/v1/settings", bytes.NewReader(mustJSON(s)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Statistics returns the label -> count aggregates.
func (c *Client) Statistics(ctx context.Context) (map[string]uint64, error) {
	var out struct {
		Statistics map[string]uint64 `json:"statistics"`
	}
	if err := c.get(ctx, "/api/v1/statistics", &out); err != nil {
		return nil, err
	}
	return out.Statistics, nil
}

// ── Request plumbing ─────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(mustJSON(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal request: %v", err))
	}
	return data
}
