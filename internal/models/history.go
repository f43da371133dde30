package models

// HistoryEntry is a read-only snapshot of a finished scan as listed by the
// backend.
type HistoryEntry struct {
	ID              string     `json:"id"`
	ScanID          string     `json:"scan_id,omitempty"`
	URL             string     `json:"url"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	Vulnerabilities int        `json:"vulnerabilities"`
	Status          ScanStatus `json:"status"`
}

// Key returns the identifier used for follow-up calls (view, delete, report).
func (h HistoryEntry) Key() string {
	return firstNonEmpty(h.ID, h.ScanID)
}

type HistoryResponse struct {
	Scans []HistoryEntry `json:"scans"`
	Total int            `json:"total"`
}

type Statistics struct {
	TotalScans                    int     `json:"total_scans"`
	TotalVulnerabilities          int     `json:"total_vulnerabilities"`
	ActiveScans                   int     `json:"active_scans"`
	AverageVulnerabilitiesPerScan float64 `json:"average_vulnerabilities_per_scan"`
}
