package pilot

import (
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
)

// Config holds the pilot module configuration.
type Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	DefaultProvider string `mapstructure:"default_provider"`

	// MonthlyQuotaTokens caps tokens per organization per calendar month.
	// Zero means unlimited.
	MonthlyQuotaTokens int64 `mapstructure:"monthly_quota_tokens"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Per-organization rate limit on LLM-calling routes.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`

	// Generation defaults per feature.
	QueryMaxTokens       int     `mapstructure:"query_max_tokens"`
	ExplanationMaxTokens int     `mapstructure:"explanation_max_tokens"`
	ReportMaxTokens      int     `mapstructure:"report_max_tokens"`
	RootCauseMaxTokens   int     `mapstructure:"root_cause_max_tokens"`
	QueryTemperature     float64 `mapstructure:"query_temperature"`
	ExplanationTemp      float64 `mapstructure:"explanation_temperature"`
	ReportTemperature    float64 `mapstructure:"report_temperature"`
	RootCauseTemp        float64 `mapstructure:"root_cause_temperature"`

	// Context assembly bounds.
	MaxDevicesForQuery      int `mapstructure:"max_devices_for_query"`
	MaxDevicesForReport     int `mapstructure:"max_devices_for_report"`
	MaxVariablesPerDevice   int `mapstructure:"max_variables_per_device"`
	MaxRelatedAnomalies     int `mapstructure:"max_related_anomalies"`
	MaxAnomaliesInReport    int `mapstructure:"max_anomalies_in_report"`
	MaxSupportingDataPoints int `mapstructure:"max_supporting_data_points"`
	RootCauseLookbackHours  int `mapstructure:"root_cause_lookback_hours"`

	// Batch and worker limits.
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	MaxBatchItems    int `mapstructure:"max_batch_items"`
	WorkerPoolSize   int `mapstructure:"worker_pool_size"`

	// Hard validation ceilings.
	MaxQueryLength        int `mapstructure:"max_query_length"`
	MaxCustomPromptLength int `mapstructure:"max_custom_prompt_length"`
	MaxContextLength      int `mapstructure:"max_context_length"`

	// Widget assistant conversation state.
	MaxConversationMessages   int           `mapstructure:"max_conversation_messages"`
	MaxChatMessageLength      int           `mapstructure:"max_chat_message_length"`
	ConversationTTL           time.Duration `mapstructure:"conversation_ttl"`
	ConversationSweepInterval time.Duration `mapstructure:"conversation_sweep_interval"`
}

// DefaultConfig returns the module defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultProvider: string(llm.ProviderClaude),

		RequestTimeout: 60 * time.Second,

		RateLimitPerMinute: 30,
		RateLimitBurst:     10,

		QueryMaxTokens:       1024,
		ExplanationMaxTokens: 1024,
		ReportMaxTokens:      2048,
		RootCauseMaxTokens:   2048,
		QueryTemperature:     0.5,
		ExplanationTemp:      0.3,
		ReportTemperature:    0.4,
		RootCauseTemp:        0.3,

		MaxDevicesForQuery:      20,
		MaxDevicesForReport:     30,
		MaxVariablesPerDevice:   10,
		MaxRelatedAnomalies:     10,
		MaxAnomaliesInReport:    5,
		MaxSupportingDataPoints: 50,
		RootCauseLookbackHours:  24,

		BatchConcurrency: 3,
		MaxBatchItems:    10,
		WorkerPoolSize:   8,

		MaxQueryLength:        1000,
		MaxCustomPromptLength: 2000,
		MaxContextLength:      2000,

		MaxConversationMessages:   50,
		MaxChatMessageLength:      2000,
		ConversationTTL:           30 * time.Minute,
		ConversationSweepInterval: 5 * time.Minute,
	}
}
