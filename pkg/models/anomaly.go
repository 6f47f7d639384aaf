package models

import "time"

// AnomalySeverity ranks how unusual a detected anomaly is.
type AnomalySeverity string

const (
	AnomalySeverityLow      AnomalySeverity = "low"
	AnomalySeverityMedium   AnomalySeverity = "medium"
	AnomalySeverityHigh     AnomalySeverity = "high"
	AnomalySeverityCritical AnomalySeverity = "critical"
)

// AnomalyStatus tracks the triage state of an anomaly.
type AnomalyStatus string

const (
	AnomalyStatusOpen         AnomalyStatus = "open"
	AnomalyStatusAcknowledged AnomalyStatus = "acknowledged"
	AnomalyStatusResolved     AnomalyStatus = "resolved"
	AnomalyStatusDismissed    AnomalyStatus = "dismissed"
)

// Anomaly is a detector finding on a device's telemetry.
type Anomaly struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	DeviceID          string          `json:"device_id"`
	Type              string          `json:"type" example:"spike"`
	Severity          AnomalySeverity `json:"severity" example:"high"`
	Score             float64         `json:"score" example:"0.93"`
	Status            AnomalyStatus   `json:"status"`
	AffectedVariables []string        `json:"affected_variables,omitempty"`
	DetectedAt        time.Time       `json:"detected_at"`
}

// Alert is a threshold-rule firing on a variable.
type Alert struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DeviceID       string    `json:"device_id"`
	RuleName       string    `json:"rule_name" example:"high-temp"`
	Variable       string    `json:"variable" example:"temperature"`
	Operator       string    `json:"operator" example:">"`
	Threshold      float64   `json:"threshold"`
	TriggeredValue float64   `json:"triggered_value"`
	TriggeredAt    time.Time `json:"triggered_at"`
	Acknowledged   bool      `json:"acknowledged"`
	Message        string    `json:"message,omitempty"`
}
