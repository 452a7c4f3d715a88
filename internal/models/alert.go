package models

import "time"

type AlertType string

const (
	AlertTypePhysical      AlertType = "Physical"
	AlertTypeCyber         AlertType = "Cyber"
	AlertTypeEnvironmental AlertType = "Environmental"
	AlertTypeOther         AlertType = "Other"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypePhysical, AlertTypeCyber, AlertTypeEnvironmental, AlertTypeOther:
		return true
	}
	return false
}

type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "Low"
	AlertSeverityMedium   AlertSeverity = "Medium"
	AlertSeverityHigh     AlertSeverity = "High"
	AlertSeverityCritical AlertSeverity = "Critical"
)

func (s AlertSeverity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities from Low (1) to Critical (4). Unknown values rank 0.
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityLow:
		return 1
	case AlertSeverityMedium:
		return 2
	case AlertSeverityHigh:
		return 3
	case AlertSeverityCritical:
		return 4
	}
	return 0
}

// Alert is an immutable incident report. ID and CreatedAt are assigned by
// the server at submission time; there are no update or delete paths.
type Alert struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	ReporterID  string        `json:"reporterId"`
	CreatedAt   time.Time     `json:"timestamp"` // rendered as RFC 3339
}

// AlertInput is the submission payload before the server assigns identity.
type AlertInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	ReporterID  string `json:"reporterId"`
}
