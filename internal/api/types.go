// Package api provides the REST client and wire types for the scan
// server's dashboard API. Types mirror the server's JSON contract;
// fields the server may emit as null decode to zero values.
package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Scan modes reported by the server.
const (
	ModeRandom = "random"
	ModeTarget = "target"
)

// Risk labels in ascending severity.
const (
	RiskInfo     = "info"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// ValidPorts lists the ports the server accepts in scan requests.
var ValidPorts = []int{80, 443, 8080, 8443}

// ValidPort reports whether the server accepts p in scan requests.
func ValidPort(p int) bool {
	for _, allowed := range ValidPorts {
		if p == allowed {
			return true
		}
	}
	return false
}

// Export formats accepted by the export endpoint.
const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
	ExportFormatPDF  = "pdf"
)

// RiskRank orders risk labels from least to most severe. Unknown labels
// rank below info so they never outrank a real finding.
func RiskRank(risk string) int {
	switch strings.ToLower(risk) {
	case RiskInfo:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return -1
	}
}

// ValidStatusFilter reports whether s is a status class the results
// endpoint understands. Empty means no filtering.
func ValidStatusFilter(s string) bool {
	switch s {
	case "", "2xx", "3xx", "4xx", "5xx":
		return true
	default:
		return false
	}
}

// ValidRiskFilter reports whether s is a risk filter the results
// endpoint understands. Empty and "all" both mean no filtering.
func ValidRiskFilter(s string) bool {
	switch s {
	case "", "all", "has_vuln", RiskCritical, RiskHigh, RiskMedium, RiskLow:
		return true
	default:
		return false
	}
}

// ValidExportFormat reports whether format names a supported export.
func ValidExportFormat(format string) bool {
	switch format {
	case ExportFormatCSV, ExportFormatJSON, ExportFormatPDF:
		return true
	default:
		return false
	}
}

// Result is one scanned endpoint as stored by the server. Headers,
// Vulnerabilities and TechStack arrive as embedded JSON strings; use
// the decode helpers rather than parsing them by hand.
type Result struct {
	ID              int64   `json:"id"`
	IP              string  `json:"ip"`
	Port            int     `json:"port"`
	Protocol        string  `json:"protocol"`
	StatusCode      int     `json:"status_code"`
	Title           string  `json:"title"`
	Server          string  `json:"server"`
	SSLIssuer       string  `json:"ssl_issuer"`
	SSLExpiry       string  `json:"ssl_expiry"`
	SSLDomain       string  `json:"ssl_domain"`
	ScreenshotPath  string  `json:"screenshot_path"`
	ResponseTimeMS  float64 `json:"response_time_ms"`
	Headers         string  `json:"headers"`
	Vulnerabilities string  `json:"vulnerabilities"`
	VulnCount       int     `json:"vuln_count"`
	VulnMaxRisk     string  `json:"vuln_max_risk"`
	Hostname        string  `json:"hostname"`
	Country         string  `json:"country"`
	CountryCode     string  `json:"country_code"`
	TechStack       string  `json:"tech_stack"`
	ScannedAt       string  `json:"scanned_at"`
}

// Finding is a single vulnerability check result embedded in a Result.
type Finding struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
}

// URL returns the probed address in scheme://host:port form.
func (r *Result) URL() string {
	host := r.IP
	if r.Hostname != "" {
		host = r.Hostname
	}
	return r.Protocol + "://" + host + ":" + strconv.Itoa(r.Port)
}

// HeaderMap decodes the embedded response headers. Rows written before
// header capture existed hold empty or malformed JSON; those decode to
// an empty map rather than an error.
func (r *Result) HeaderMap() map[string]string {
	if r.Headers == "" {
		return map[string]string{}
	}
	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(r.Headers), &headers); err != nil {
		return map[string]string{}
	}
	return headers
}

// Findings decodes the embedded vulnerability list. Empty or malformed
// payloads decode to nil.
func (r *Result) Findings() []Finding {
	if r.Vulnerabilities == "" {
		return nil
	}
	var findings []Finding
	if err := json.Unmarshal([]byte(r.Vulnerabilities), &findings); err != nil {
		return nil
	}
	return findings
}

// Technologies decodes the embedded tech stack list. Empty or malformed
// payloads decode to nil.
func (r *Result) Technologies() []string {
	if r.TechStack == "" {
		return nil
	}
	var stack []string
	if err := json.Unmarshal([]byte(r.TechStack), &stack); err != nil {
		return nil
	}
	return stack
}

// HasFindings reports whether the row carries any vulnerability findings.
func (r *Result) HasFindings() bool {
	return r.VulnCount > 0
}

// ScanStatus is the server's view of the current scan session.
// ElapsedSeconds is only present on the status endpoint; stream pushes
// omit it, which the pointer distinguishes from an explicit zero.
type ScanStatus struct {
	Running        bool    `json:"running"`
	TotalScanned   int64   `json:"total_scanned"`
	TotalFound     int64   `json:"total_found"`
	CurrentRate    float64 `json:"current_rate"`
	ElapsedSeconds *int64  `json:"elapsed_seconds,omitempty"`
	Mode           string  `json:"mode"`
	TargetTotal    int64   `json:"target_total,omitempty"`
	TargetDone     int64   `json:"target_done,omitempty"`
}

// Snapshot is one page of results from the results endpoint. Count is
// the length of Results, not the table size.
type Snapshot struct {
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// Stats aggregates the stored results table.
type Stats struct {
	TotalScans    int64            `json:"total_scans"`
	StatusCounts  map[string]int64 `json:"status_counts"`
	ServerStats   []ServerCount    `json:"server_stats"`
	AvgResponseMS float64          `json:"avg_response_ms"`
	VulnStats     VulnStats        `json:"vuln_stats"`
}

// ServerCount is one entry in the server software ranking.
type ServerCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// VulnStats tallies stored findings by severity.
type VulnStats struct {
	Critical      int64 `json:"critical"`
	High          int64 `json:"high"`
	Medium        int64 `json:"medium"`
	Low           int64 `json:"low"`
	TotalFindings int64 `json:"total_findings"`
}

// StartScanRequest launches a random sweep.
type StartScanRequest struct {
	Ports           []int  `json:"ports" validate:"required,min=1,dive,oneof=80 443 8080 8443"`
	TakeScreenshots bool   `json:"take_screenshots"`
	RunVulnCheck    bool   `json:"run_vuln_check"`
	SearchRegex     string `json:"search_regex,omitempty"`
}

// TargetScanRequest launches a sweep over an explicit target list.
// Targets is free text: comma separated hosts, IPs or CIDR blocks.
type TargetScanRequest struct {
	Targets         string `json:"targets" validate:"required"`
	Ports           []int  `json:"ports" validate:"required,min=1,dive,oneof=80 443 8080 8443"`
	TakeScreenshots bool   `json:"take_screenshots"`
	RunVulnCheck    bool   `json:"run_vuln_check"`
	SearchRegex     string `json:"search_regex,omitempty"`
	Subdomains      bool   `json:"subdomains,omitempty"`
}

// StartScanResponse acknowledges a scan launch. TargetCount and
// TotalScans are only set for target mode.
type StartScanResponse struct {
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	Ports       []int  `json:"ports"`
	TargetCount int64  `json:"target_count,omitempty"`
	TotalScans  int64  `json:"total_scans,omitempty"`
}

// StatusResponse is the generic {"status": ...} acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// ResultsParams selects one page of results.
type ResultsParams struct {
	Search       string
	StatusFilter string
	RiskFilter   string
	Limit        int
	Offset       int
}

// Values encodes the parameters for the results and export endpoints.
// Zero values are omitted so the server's defaults apply.
func (p ResultsParams) Values() url.Values {
	values := url.Values{}
	if p.Search != "" {
		values.Set("search", p.Search)
	}
	if p.StatusFilter != "" {
		values.Set("status_filter", p.StatusFilter)
	}
	if p.RiskFilter != "" {
		values.Set("risk_filter", p.RiskFilter)
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		values.Set("offset", strconv.Itoa(p.Offset))
	}
	return values
}
