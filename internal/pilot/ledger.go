package pilot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one immutable ledger row per LLM call attempt.
type UsageRecord struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	UserID        string    `json:"user_id,omitempty"`
	Provider      string    `json:"provider"`
	ModelID       string    `json:"model_id,omitempty"`
	Feature       string    `json:"feature"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TotalTokens   int       `json:"total_tokens"`
	CostCents     int       `json:"cost_cents"`
	LatencyMs     int       `json:"latency_ms"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProviderUsage is an aggregate grouped by provider.
type ProviderUsage struct {
	Provider  string `json:"provider"`
	Requests  int64  `json:"requests"`
	Tokens    int64  `json:"tokens"`
	CostCents int64  `json:"cost_cents"`
}

// FeatureUsage is an aggregate grouped by feature tag.
type FeatureUsage struct {
	Feature   string `json:"feature"`
	Requests  int64  `json:"requests"`
	Tokens    int64  `json:"tokens"`
	CostCents int64  `json:"cost_cents"`
}

// DailyUsage is one point of the per-day usage time series.
type DailyUsage struct {
	Date      string `json:"date"` // YYYY-MM-DD (UTC).
	Requests  int64  `json:"requests"`
	Tokens    int64  `json:"tokens"`
	CostCents int64  `json:"cost_cents"`
}

// UsageStats aggregates a tenant's usage over a trailing window.
type UsageStats struct {
	WindowDays     int             `json:"window_days"`
	TotalRequests  int64           `json:"total_requests"`
	SuccessCount   int64           `json:"success_count"`
	FailureCount   int64           `json:"failure_count"`
	TotalTokens    int64           `json:"total_tokens"`
	TotalCostCents int64           `json:"total_cost_cents"`
	AvgLatencyMs   float64         `json:"avg_latency_ms"` // Successful calls only.
	ByProvider     []ProviderUsage `json:"by_provider"`
	ByFeature      []FeatureUsage  `json:"by_feature"`
	Daily          []DailyUsage    `json:"daily"`
}

// QuotaStatus reports a tenant's standing against the monthly token quota.
type QuotaStatus struct {
	QuotaTokens int64 `json:"quota_tokens"` // 0 = unlimited.
	UsedTokens  int64 `json:"used_tokens"`  // Since the first of the month (UTC).
	Remaining   int64 `json:"remaining"`    // -1 = unlimited.
	Exceeded    bool  `json:"exceeded"`
}

// Ledger is the append-only usage store backing billing and analytics.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger creates a Ledger over the shared database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Record appends one usage row. Rows are never updated afterwards.
func (l *Ledger) Record(ctx context.Context, rec *UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pilot_usage (
			id, org_id, user_id, provider, model_id, feature,
			input_tokens, output_tokens, total_tokens, cost_cents, latency_ms,
			success, error_message, reference_type, reference_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.UserID, rec.Provider, rec.ModelID, rec.Feature,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.CostCents, rec.LatencyMs,
		boolToInt(rec.Success), rec.ErrorMessage, rec.ReferenceType, rec.ReferenceID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// HistoryByOrg returns a page of a tenant's usage, newest first.
func (l *Ledger) HistoryByOrg(ctx context.Context, orgID string, limit, offset int) ([]UsageRecord, error) {
	return l.history(ctx, "org_id = ?", orgID, limit, offset)
}

// HistoryByUser returns a page of one user's usage, newest first.
func (l *Ledger) HistoryByUser(ctx context.Context, userID string, limit, offset int) ([]UsageRecord, error) {
	return l.history(ctx, "user_id = ?", userID, limit, offset)
}

func (l *Ledger) history(ctx context.Context, where, key string, limit, offset int) ([]UsageRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, org_id, user_id, provider, model_id, feature,
		       input_tokens, output_tokens, total_tokens, cost_cents, latency_ms,
		       success, error_message, reference_type, reference_id, created_at
		FROM pilot_usage WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		key, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage history: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var success int
		if err := rows.Scan(
			&rec.ID, &rec.OrgID, &rec.UserID, &rec.Provider, &rec.ModelID, &rec.Feature,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.CostCents, &rec.LatencyMs,
			&success, &rec.ErrorMessage, &rec.ReferenceType, &rec.ReferenceID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		rec.Success = success != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats aggregates a tenant's usage over the trailing windowDays days.
func (l *Ledger) Stats(ctx context.Context, orgID string, windowDays int) (*UsageStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := l.now().UTC().AddDate(0, 0, -windowDays)

	stats := &UsageStats{WindowDays: windowDays}

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost_cents), 0),
		       COALESCE(AVG(CASE WHEN success = 1 THEN latency_ms END), 0)
		FROM pilot_usage
		WHERE org_id = ? AND created_at >= ?`,
		orgID, since,
	).Scan(&stats.TotalRequests, &stats.SuccessCount, &stats.TotalTokens, &stats.TotalCostCents, &stats.AvgLatencyMs)
	if err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	stats.FailureCount = stats.TotalRequests - stats.SuccessCount

	rows, err := l.db.QueryContext(ctx, `
		SELECT provider, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_cents), 0)
		FROM pilot_usage
		WHERE org_id = ? AND created_at >= ?
		GROUP BY provider ORDER BY provider`,
		orgID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query provider breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pu ProviderUsage
		if err := rows.Scan(&pu.Provider, &pu.Requests, &pu.Tokens, &pu.CostCents); err != nil {
			return nil, fmt.Errorf("scan provider breakdown: %w", err)
		}
		stats.ByProvider = append(stats.ByProvider, pu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := l.db.QueryContext(ctx, `
		SELECT feature, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_cents), 0)
		FROM pilot_usage
		WHERE org_id = ? AND created_at >= ?
		GROUP BY feature ORDER BY feature`,
		orgID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query feature breakdown: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var fu FeatureUsage
		if err := frows.Scan(&fu.Feature, &fu.Requests, &fu.Tokens, &fu.CostCents); err != nil {
			return nil, fmt.Errorf("scan feature breakdown: %w", err)
		}
		stats.ByFeature = append(stats.ByFeature, fu)
	}
	if err := frows.Err(); err != nil {
		return nil, err
	}

	drows, err := l.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10), COUNT(*),
		       COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_cents), 0)
		FROM pilot_usage
		WHERE org_id = ? AND created_at >= ?
		GROUP BY 1 ORDER BY 1`,
		orgID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily series: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var du DailyUsage
		if err := drows.Scan(&du.Date, &du.Requests, &du.Tokens, &du.CostCents); err != nil {
			return nil, fmt.Errorf("scan daily series: %w", err)
		}
		stats.Daily = append(stats.Daily, du)
	}
	return stats, drows.Err()
}

// TokensThisMonth returns the tenant's token consumption since the first
// day of the current calendar month (UTC).
func (l *Ledger) TokensThisMonth(ctx context.Context, orgID string) (int64, error) {
	now := l.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var used int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_tokens), 0)
		FROM pilot_usage
		WHERE org_id = ? AND created_at >= ?`,
		orgID, monthStart,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("query monthly tokens: %w", err)
	}
	return used, nil
}

// Quota compares this month's consumption against the given monthly
// token quota. Zero quota means unlimited (Remaining = -1, never exceeded).
func (l *Ledger) Quota(ctx context.Context, orgID string, quotaTokens int64) (*QuotaStatus, error) {
	used, err := l.TokensThisMonth(ctx, orgID)
	if err != nil {
		return nil, err
	}

	status := &QuotaStatus{QuotaTokens: quotaTokens, UsedTokens: used}
	if quotaTokens <= 0 {
		status.Remaining = -1
		return status, nil
	}

	status.Remaining = quotaTokens - used
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	// Landing exactly on the quota already counts as exceeded.
	status.Exceeded = used >= quotaTokens
	return status, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
