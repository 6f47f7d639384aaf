package pilot

import (
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
)

// ExplainResult is the outcome of an anomaly explanation.
type ExplainResult struct {
	AnomalyID    string    `json:"anomaly_id"`
	DeviceID     string    `json:"device_id,omitempty"`
	DeviceName   string    `json:"device_name,omitempty"`
	AnomalyScore float64   `json:"anomaly_score,omitempty"`
	Severity     string    `json:"severity,omitempty"`
	Explanation  string    `json:"explanation,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	ModelID      string    `json:"model_id,omitempty"`
	TokensUsed   int       `json:"tokens_used,omitempty"`
	LatencyMs    int       `json:"latency_ms,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// QueryRequest asks a natural-language question over telemetry.
type QueryRequest struct {
	Query     string           `json:"query"`
	DeviceIDs []string         `json:"device_ids,omitempty"` // Empty means tenant-wide, capped.
	From      *time.Time       `json:"from,omitempty"`       // Default: 24h ago.
	To        *time.Time       `json:"to,omitempty"`         // Default: now.
	Provider  llm.ProviderID   `json:"provider,omitempty"`
}

// SupportingPoint is one data point cited alongside a query answer.
type SupportingPoint struct {
	DeviceName   string    `json:"device_name"`
	VariableName string    `json:"variable_name"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// QueryResult is the outcome of a natural-language query.
type QueryResult struct {
	Query          string            `json:"query"`
	Answer         string            `json:"answer,omitempty"`
	SupportingData []SupportingPoint `json:"supporting_data,omitempty"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	ModelID        string            `json:"model_id,omitempty"`
	TokensUsed     int               `json:"tokens_used,omitempty"`
	LatencyMs      int               `json:"latency_ms,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// ReportType selects a report template and its default window.
type ReportType string

// Report types.
const (
	ReportDailySummary    ReportType = "DAILY_SUMMARY"
	ReportWeeklyReview    ReportType = "WEEKLY_REVIEW"
	ReportMonthlyAnalysis ReportType = "MONTHLY_ANALYSIS"
	ReportAnomalyReport   ReportType = "ANOMALY_REPORT"
	ReportDeviceHealth    ReportType = "DEVICE_HEALTH"
	ReportEnergyAnalysis  ReportType = "ENERGY_ANALYSIS"
	ReportCustom          ReportType = "CUSTOM"
)

// ReportRequest asks for a narrative report over a device set and window.
type ReportRequest struct {
	ReportType   ReportType     `json:"report_type"`
	DeviceIDs    []string       `json:"device_ids,omitempty"`
	PeriodStart  *time.Time     `json:"period_start,omitempty"`
	PeriodEnd    *time.Time     `json:"period_end,omitempty"`
	CustomPrompt string         `json:"custom_prompt,omitempty"` // CUSTOM reports only.
	Provider     llm.ProviderID `json:"provider,omitempty"`
}

// ReportResult is a generated narrative report with parsed sections.
type ReportResult struct {
	ReportID         string     `json:"report_id"`
	ReportType       ReportType `json:"report_type"`
	Title            string     `json:"title,omitempty"`
	ExecutiveSummary string     `json:"executive_summary,omitempty"`
	Content          string     `json:"content,omitempty"` // Full markdown.
	KeyFindings      []string   `json:"key_findings,omitempty"`
	Recommendations  []string   `json:"recommendations,omitempty"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
	DeviceIDs        []string   `json:"device_ids,omitempty"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Provider         string     `json:"provider,omitempty"`
	ModelID          string     `json:"model_id,omitempty"`
	TokensUsed       int        `json:"tokens_used,omitempty"`
	LatencyMs        int        `json:"latency_ms,omitempty"`
	GeneratedAt      time.Time  `json:"generated_at"`
}

// SourceType identifies what kind of event a root cause analysis starts from.
type SourceType string

// Root cause source types.
const (
	SourceAnomaly SourceType = "ANOMALY"
	SourceAlert   SourceType = "ALERT"
)

// RootCauseRequest asks for a root cause analysis of an anomaly or alert.
type RootCauseRequest struct {
	SourceID          string         `json:"source_id"`
	SourceType        SourceType     `json:"source_type"`
	LookbackHours     int            `json:"lookback_hours,omitempty"` // Default 24.
	AdditionalContext string         `json:"additional_context,omitempty"`
	Provider          llm.ProviderID `json:"provider,omitempty"`
}

// RootCauseResult is the outcome of a root cause analysis.
type RootCauseResult struct {
	AnalysisID      string     `json:"analysis_id"`
	SourceID        string     `json:"source_id"`
	SourceType      SourceType `json:"source_type"`
	DeviceID        string     `json:"device_id,omitempty"`
	DeviceName      string     `json:"device_name,omitempty"`
	IssueSummary    string     `json:"issue_summary,omitempty"`
	FullAnalysis    string     `json:"full_analysis,omitempty"` // Full markdown.
	ConfidenceLevel int        `json:"confidence_level"`        // 0-100.
	Success         bool       `json:"success"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Provider        string     `json:"provider,omitempty"`
	ModelID         string     `json:"model_id,omitempty"`
	TokensUsed      int        `json:"tokens_used,omitempty"`
	LatencyMs       int        `json:"latency_ms,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// WidgetType enumerates the dashboard widget kinds the assistant may suggest.
type WidgetType string

// Widget types.
const (
	WidgetLineChart  WidgetType = "LINE_CHART"
	WidgetGauge      WidgetType = "GAUGE"
	WidgetMetricCard WidgetType = "METRIC_CARD"
	WidgetBarChart   WidgetType = "BAR_CHART"
	WidgetAreaChart  WidgetType = "AREA_CHART"
	WidgetPieChart   WidgetType = "PIE_CHART"
	WidgetIndicator  WidgetType = "INDICATOR"
	WidgetTable      WidgetType = "TABLE"
	WidgetMap        WidgetType = "MAP"
)

// ValidWidgetType reports whether t is one of the supported widget kinds.
func ValidWidgetType(t WidgetType) bool {
	switch t {
	case WidgetLineChart, WidgetGauge, WidgetMetricCard, WidgetBarChart,
		WidgetAreaChart, WidgetPieChart, WidgetIndicator, WidgetTable, WidgetMap:
		return true
	}
	return false
}

// WidgetSuggestion is a widget configuration proposed by the assistant,
// held pending until the user confirms or cancels.
type WidgetSuggestion struct {
	Name         string         `json:"name"`
	Type         WidgetType     `json:"type"`
	DeviceID     string         `json:"deviceId"`
	DeviceName   string         `json:"deviceName,omitempty"`
	VariableName string         `json:"variableName"`
	Width        int            `json:"width,omitempty"`  // Default 6.
	Height       int            `json:"height,omitempty"` // Default 4.
	Config       map[string]any `json:"config,omitempty"`
}

// WidgetConfig is the materialized widget handed to the dashboard on confirm.
type WidgetConfig struct {
	Name         string
	Type         WidgetType
	DeviceID     string
	VariableName string
	Width        int
	Height       int
	Config       map[string]any
}

// ChatRequest is one user turn in a widget assistant conversation.
type ChatRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"` // Empty starts a new conversation.
	Message        string         `json:"message"`
	Provider       llm.ProviderID `json:"provider,omitempty"`
}

// ChatResult is the assistant's reply, optionally carrying a suggestion.
type ChatResult struct {
	ConversationID     string            `json:"conversation_id"`
	Message            string            `json:"message"`
	Suggestion         *WidgetSuggestion `json:"suggestion,omitempty"`
	NeedsClarification bool              `json:"needs_clarification"`
	Provider           string            `json:"provider,omitempty"`
	ModelID            string            `json:"model_id,omitempty"`
	TokensUsed         int               `json:"tokens_used,omitempty"`
	LatencyMs          int               `json:"latency_ms,omitempty"`
}

// ConfirmResult reports the outcome of confirming a pending suggestion.
type ConfirmResult struct {
	Created  bool   `json:"created"`
	WidgetID string `json:"widget_id,omitempty"`
	Message  string `json:"message"`
}
