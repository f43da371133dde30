// Package client talks to the ZeroGap scan backend over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hugh/zerogap/internal/models"
)

const DefaultTimeout = 30 * time.Second

// APIError is returned when the backend answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartScan handles POST /scan/start
func (c *Client) StartScan(ctx context.Context, target string, threads int) (*models.StartScanResponse, error) {
	var resp models.StartScanResponse
	req := models.StartScanRequest{URL: target, Threads: threads}
	if err := c.doJSON(ctx, http.MethodPost, "/scan/start", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetScan handles GET /scan/{id}
func (c *Client) GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	if err := c.doJSON(ctx, http.MethodGet, "/scan/"+url.PathEscape(scanID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListHistory handles GET /history?limit=N. A non-positive limit lets the
// backend decide.
func (c *Client) ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp models.HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Scans == nil {
		resp.Scans = []models.HistoryEntry{}
	}
	return resp.Scans, nil
}

// DeleteScan handles DELETE /history/{id}
func (c *Client) DeleteScan(ctx context.Context, scanID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/history/"+url.PathEscape(scanID), nil, nil)
}

// ResetHistory handles DELETE /history
func (c *Client) ResetHistory(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/history", nil, nil)
}

// Stats handles GET /stats
func (c *Client) Stats(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics
	if err := c.doJSON(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Explain handles POST /explain. A backend-side error payload is returned as
// an *APIError even when it arrives with a 2xx status.
func (c *Client) Explain(ctx context.Context, text string) (*models.Explanation, error) {
	var resp models.ExplainResponse
	if err := c.doJSON(ctx, http.MethodPost, "/explain", models.ExplainRequest{VulnText: text}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	if resp.Result == nil {
		return &models.Explanation{}, nil
	}
	return resp.Result, nil
}

// Health handles GET /health
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// ReportURL is the direct download link for a scan report.
func (c *Client) ReportURL(scanID, format string) string {
	return c.baseURL + reportPath(scanID, format)
}

// Report opens the report stream for a scan. The caller must close the
// returned reader. The filename comes from Content-Disposition when the
// backend sends one.
func (c *Client) Report(ctx context.Context, scanID, format string) (io.ReadCloser, string, error) {
	resp, err := c.do(ctx, http.MethodGet, reportPath(scanID, format), nil)
	if err != nil {
		return nil, "", err
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}
	return resp.Body, filename, nil
}

func reportPath(scanID, format string) string {
	path := "/scan/" + url.PathEscape(scanID) + "/report"
	if format == "json" {
		path += "/json"
	}
	return path
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// do issues the request and returns the response for any 2xx status. Other
// statuses are drained and turned into an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
