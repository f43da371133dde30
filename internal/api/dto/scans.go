package dto

import (
	"time"

	"github.com/hugh/zerogap/internal/api/validation"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/severity"
)

type StartScanRequest struct {
	URL     string `json:"url"`
	Threads int    `json:"threads,omitempty"`
}

func (r StartScanRequest) Validate() map[string]string {
	return validation.ValidateScanRequest(r.URL, r.Threads)
}

// ScanView is the canonical record as shown to API clients, with the derived
// severity chart and polling state.
type ScanView struct {
	Scan    *models.ScanRecord `json:"scan"`
	Polling bool               `json:"polling"`
	Chart   SeverityResponse   `json:"chart"`
}

// ExplainRequest carries either free text or the index of a finding in the
// current scan. Finding wins when both are set.
type ExplainRequest struct {
	VulnText string `json:"vuln_text"`
	Finding  *int   `json:"finding,omitempty"`
}

// SegmentView is a chart segment with its SVG stroke attributes.
type SegmentView struct {
	severity.Segment
	StrokeDashArray  string  `json:"stroke_dasharray"`
	StrokeDashOffset float64 `json:"stroke_dashoffset"`
}

type SeverityResponse struct {
	Total         int              `json:"total"`
	Radius        float64          `json:"radius"`
	Circumference float64          `json:"circumference"`
	Segments      []SegmentView    `json:"segments"`
	Legend        []severity.Count `json:"legend"`
}

func NewSeverityResponse(chart severity.Chart) SeverityResponse {
	segments := make([]SegmentView, len(chart.Segments))
	for i, seg := range chart.Segments {
		segments[i] = SegmentView{
			Segment:          seg,
			StrokeDashArray:  seg.DashArray(chart.Circumference),
			StrokeDashOffset: seg.DashOffset(),
		}
	}
	return SeverityResponse{
		Total:         chart.Total,
		Radius:        chart.Radius,
		Circumference: chart.Circumference,
		Segments:      segments,
		Legend:        chart.Legend,
	}
}

type ScheduleResponse struct {
	Enabled   bool       `json:"enabled"`
	Next      *time.Time `json:"next,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type ArchiveResponse struct {
	Download *reports.Download `json:"download"`
}

type TransitionsResponse struct {
	ScanID      string              `json:"scan_id"`
	Transitions []models.Transition `json:"transitions"`
}
