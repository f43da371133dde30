package models

import "time"

// Transition is one journal row: a scan start or a status change observed by
// the controller.
type Transition struct {
	Base
	ScanID               string     `gorm:"index;not null" json:"scan_id"`
	URL                  string     `json:"url"`
	FromStatus           ScanStatus `json:"from"`
	ToStatus             ScanStatus `gorm:"not null;index" json:"to"`
	TotalVulnerabilities int        `gorm:"default:0" json:"total_vulnerabilities"`
	Error                string     `gorm:"type:text" json:"error,omitempty"`
	OccurredAt           time.Time  `gorm:"index" json:"occurred_at"`
}

func (Transition) TableName() string {
	return "scan_transitions"
}
