package models

type ScanStatus string

const (
	ScanStatusStarting  ScanStatus = "starting"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// IsActive reports whether the scan is still being worked on by the backend
// and should be polled.
func (s ScanStatus) IsActive() bool {
	return s == ScanStatusStarting || s == ScanStatusRunning
}

// IsTerminal reports whether no further transitions can happen.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// ScanRecord is the backend's view of a single scan. Every field is optional
// on the wire; zero values stand in for anything missing.
type ScanRecord struct {
	ScanID               string          `json:"scan_id"`
	URL                  string          `json:"url"`
	Status               ScanStatus      `json:"status"`
	Progress             int             `json:"progress"`
	Threads              int             `json:"threads,omitempty"`
	Vulnerabilities      []Vulnerability `json:"vulnerabilities"`
	TotalVulnerabilities int             `json:"total_vulnerabilities"`
	SeverityStats        map[string]int  `json:"severity_stats,omitempty"`
	CrawledURLsCount     int             `json:"crawled_urls_count"`
	FormsCount           int             `json:"forms_count"`
	StartedAt            string          `json:"started_at,omitempty"`
	CompletedAt          string          `json:"completed_at,omitempty"`
	Error                string          `json:"error,omitempty"`
}

// Vulnerability is a single finding as reported by the scanner. The backend
// has used several names for the same fields over time, so both spellings
// are accepted.
type Vulnerability struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Payload     string `json:"payload,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	Details     string `json:"details,omitempty"`
}

func (v Vulnerability) DisplayName() string {
	return firstNonEmpty(v.Title, v.Name, v.Type)
}

func (v Vulnerability) DisplaySummary() string {
	return firstNonEmpty(v.Summary, v.Description)
}

// ExplainText is the text submitted to the explain endpoint for this finding.
func (v Vulnerability) ExplainText() string {
	name, summary := v.DisplayName(), v.DisplaySummary()
	switch {
	case name == "":
		return summary
	case summary == "":
		return name
	default:
		return name + ": " + summary
	}
}

type StartScanRequest struct {
	URL     string `json:"url"`
	Threads int    `json:"threads"`
}

type StartScanResponse struct {
	ScanID string `json:"scan_id"`
	URL    string `json:"url"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
