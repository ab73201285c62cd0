package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scanhud/scanhud/internal/config"
	"github.com/scanhud/scanhud/internal/errors"
	"github.com/scanhud/scanhud/internal/logging"
	"github.com/scanhud/scanhud/internal/metrics"
)

// Server endpoints.
const (
	endpointScanStart  = "/api/scan/start"
	endpointScanTarget = "/api/scan/target"
	endpointScanStop   = "/api/scan/stop"
	endpointScanStatus = "/api/scan/status"
	endpointResults    = "/api/results"
	endpointStats      = "/api/stats"
	endpointExport     = "/api/export"
)

// HTTP client tuning. Requests are bounded by per-call context
// deadlines, not a client-wide timeout.
const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 30 * time.Second
)

// Client talks to the scan server's REST API. It is safe for
// concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient creates a REST client from configuration. The configured
// fetch timeout bounds each request; zero disables the deadline.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:       defaultMaxIdleConns,
			IdleConnTimeout:    defaultIdleConnTimeout,
			DisableCompression: false,
			DisableKeepAlives:  false,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.Server.URL, "/"),
		userAgent:  cfg.Server.UserAgent,
		timeout:    cfg.Fetch.Timeout,
		httpClient: httpClient,
		validate:   validator.New(),
	}
}

// BaseURL returns the server address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartScan launches a random sweep over the given ports.
func (c *Client) StartScan(ctx context.Context, req StartScanRequest) (*StartScanResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, errors.WrapRequestError(errors.CodeValidation,
			"invalid scan request", err)
	}

	var resp StartScanResponse
	if err := c.request(ctx, http.MethodPost, endpointScanStart, req, &resp); err != nil {
		return nil, err
	}

	logging.Info("scan started", "mode", resp.Mode, "ports", resp.Ports)
	return &resp, nil
}

// StartTargetScan launches a sweep over an explicit target list.
func (c *Client) StartTargetScan(ctx context.Context, req TargetScanRequest) (*StartScanResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, errors.WrapRequestError(errors.CodeValidation,
			"invalid target scan request", err)
	}

	var resp StartScanResponse
	if err := c.request(ctx, http.MethodPost, endpointScanTarget, req, &resp); err != nil {
		return nil, err
	}

	logging.Info("target scan started",
		"targets", resp.TargetCount,
		"total_scans", resp.TotalScans,
		"ports", resp.Ports)
	return &resp, nil
}

// StopScan halts the running scan. Stopping an idle scanner is not an
// error: the server rejects the call, and that rejection is mapped to
// the stopped state so the operation stays idempotent.
func (c *Client) StopScan(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	err := c.request(ctx, http.MethodPost, endpointScanStop, nil, &resp)
	if err != nil {
		if errors.IsCode(err, errors.CodeRequestRejected) {
			return &StatusResponse{Status: "stopped"}, nil
		}
		return nil, err
	}
	return &resp, nil
}

// Status fetches the current scan session state.
func (c *Client) Status(ctx context.Context) (*ScanStatus, error) {
	var status ScanStatus
	if err := c.request(ctx, http.MethodGet, endpointScanStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Results fetches one page of scan results.
func (c *Client) Results(ctx context.Context, params ResultsParams) (*Snapshot, error) {
	endpoint := endpointResults
	if query := params.Values().Encode(); query != "" {
		endpoint += "?" + query
	}

	var snapshot Snapshot
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ResultByID fetches a single result row.
func (c *Client) ResultByID(ctx context.Context, id int64) (*Result, error) {
	endpoint := fmt.Sprintf("%s/%d", endpointResults, id)

	var result Result
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats fetches aggregate statistics over all stored results.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.request(ctx, http.MethodGet, endpointStats, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ClearResults deletes every stored result on the server.
func (c *Client) ClearResults(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.request(ctx, http.MethodDelete, endpointResults, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportURL builds the download address for an export in the given
// format, carrying the same filters the results endpoint uses.
func (c *Client) ExportURL(format string, params ResultsParams) (string, error) {
	if !ValidExportFormat(format) {
		return "", errors.NewRequestError(errors.CodeValidation,
			fmt.Sprintf("unsupported export format: %s", format))
	}

	exportURL := c.baseURL + endpointExport + "/" + format
	params.Limit = 0
	params.Offset = 0
	if query := params.Values().Encode(); query != "" {
		exportURL += "?" + query
	}
	return exportURL, nil
}

// Download fetches an export in the given format and returns the raw
// document along with the filename the server suggested. When the
// server sends no Content-Disposition a name is derived from the
// format.
func (c *Client) Download(ctx context.Context, format string, params ResultsParams) ([]byte, string, error) {
	exportURL, err := c.ExportURL(format, params)
	if err != nil {
		return nil, "", err
	}
	endpoint := endpointExport + "/" + format

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, "", errors.WrapRequestErrorWithEndpoint(errors.CodeValidation,
			"failed to create HTTP request", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(endpoint, time.Since(start), false)
		return nil, "", c.mapTransportError(ctx, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordFetch(endpoint, duration, false)
		metrics.IncrementFetchErrors(endpoint, "read_body")
		return nil, "", errors.WrapRequestErrorWithEndpoint(errors.CodeNetworkUnreachable,
			"failed to read export body", endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.RecordFetch(endpoint, duration, false)
		metrics.IncrementFetchErrors(endpoint, "rejected")
		return nil, "", c.rejectionError(endpoint, resp.StatusCode, body)
	}

	filename := exportFilename(resp.Header.Get("Content-Disposition"), format)

	metrics.RecordFetch(endpoint, duration, true)
	logging.Info("export downloaded",
		"format", format,
		"bytes", len(body),
		"filename", filename)
	return body, filename, nil
}

// exportFilename extracts the suggested name from a
// Content-Disposition header.
func exportFilename(disposition, format string) string {
	if disposition != "" {
		if _, dispParams, err := mime.ParseMediaType(disposition); err == nil {
			if name := dispParams["filename"]; name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("scan_results.%s", format)
}

// errorBody is the server's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// request performs one HTTP round trip: marshal payload, send, map
// transport and status failures onto typed errors, decode into out.
func (c *Client) request(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var requestBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return errors.WrapRequestErrorWithEndpoint(errors.CodeValidation,
				"failed to marshal request payload", endpoint, err)
		}
		requestBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, requestBody)
	if err != nil {
		return errors.WrapRequestErrorWithEndpoint(errors.CodeValidation,
			"failed to create HTTP request", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(endpoint, time.Since(start), false)
		return c.mapTransportError(ctx, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordFetch(endpoint, duration, false)
		metrics.IncrementFetchErrors(endpoint, "read_body")
		return errors.WrapRequestErrorWithEndpoint(errors.CodeNetworkUnreachable,
			"failed to read response body", endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.RecordFetch(endpoint, duration, false)
		metrics.IncrementFetchErrors(endpoint, "rejected")
		return c.rejectionError(endpoint, resp.StatusCode, bodyBytes)
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			metrics.RecordFetch(endpoint, duration, false)
			metrics.IncrementFetchErrors(endpoint, "decode")
			logging.ErrorFetch("response decode failed", endpoint, err)
			return errors.WrapRequestErrorWithEndpoint(errors.CodeMalformedPayload,
				"failed to decode response", endpoint, err)
		}
	}

	metrics.RecordFetch(endpoint, duration, true)
	return nil
}

// mapTransportError classifies a failed round trip. The context is
// inspected first: a hit deadline dominates whatever the transport
// reported.
func (c *Client) mapTransportError(ctx context.Context, endpoint string, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		metrics.IncrementFetchErrors(endpoint, "timeout")
		logging.ErrorFetch("request timed out", endpoint, err)
		return errors.ErrRequestTimeout(endpoint, err)
	case context.Canceled:
		metrics.IncrementFetchErrors(endpoint, "canceled")
		return errors.WrapRequestErrorWithEndpoint(errors.CodeCanceled,
			"request canceled", endpoint, err)
	default:
		metrics.IncrementFetchErrors(endpoint, "network")
		logging.ErrorFetch("request failed", endpoint, err)
		return errors.ErrNetworkUnreachable(endpoint, err)
	}
}

// rejectionError converts a non-2xx response into a typed error,
// preserving the server's own message verbatim.
func (c *Client) rejectionError(endpoint string, statusCode int, body []byte) error {
	var parsed errorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed.Error = strings.TrimSpace(string(body))
		}
	}
	if parsed.Error == "" {
		parsed.Error = fmt.Sprintf("HTTP %d error", statusCode)
	}

	if statusCode == http.StatusNotFound {
		rejection := errors.NewRequestErrorWithEndpoint(errors.CodeNotFound,
			parsed.Error, endpoint)
		rejection.StatusCode = statusCode
		return rejection
	}

	return errors.ErrRequestRejected(endpoint, parsed.Error, statusCode)
}
