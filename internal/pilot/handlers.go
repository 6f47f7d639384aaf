package pilot

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/plugin"
)

// Tenant identity arrives as headers injected by the platform edge.
const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/providers", Handler: m.handleProviders},
		{Method: "POST", Path: "/explain", Handler: m.limited(m.handleExplain)},
		{Method: "POST", Path: "/explain/batch", Handler: m.limited(m.handleExplainBatch)},
		{Method: "POST", Path: "/query", Handler: m.limited(m.handleQuery)},
		{Method: "POST", Path: "/report", Handler: m.limited(m.handleReport)},
		{Method: "POST", Path: "/rootcause", Handler: m.limited(m.handleRootCause)},
		{Method: "POST", Path: "/assistant/chat", Handler: m.limited(m.handleAssistantChat)},
		{Method: "POST", Path: "/assistant/confirm", Handler: m.handleAssistantConfirm},
		{Method: "POST", Path: "/assistant/cancel", Handler: m.handleAssistantCancel},
		{Method: "GET", Path: "/assistant/context", Handler: m.handleAssistantContext},
		{Method: "GET", Path: "/usage", Handler: m.handleUsage},
		{Method: "GET", Path: "/usage/stats", Handler: m.handleUsageStats},
		{Method: "GET", Path: "/usage/quota", Handler: m.handleUsageQuota},
	}
}

func (m *Module) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": m.router.AvailableProviders(),
		"default":   m.router.DefaultProvider(),
	})
}

type explainHTTPRequest struct {
	AnomalyID string         `json:"anomaly_id"`
	Provider  llm.ProviderID `json:"provider,omitempty"`
}

func (m *Module) handleExplain(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req explainHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AnomalyID == "" {
		writeProblem(w, http.StatusBadRequest, "anomaly_id is required")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	result, err := m.svc.ExplainAnomaly(r.Context(), orgID, userID, req.AnomalyID, req.Provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type explainBatchHTTPRequest struct {
	AnomalyIDs []string       `json:"anomaly_ids"`
	Provider   llm.ProviderID `json:"provider,omitempty"`
}

func (m *Module) handleExplainBatch(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req explainBatchHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	results, err := m.svc.ExplainBatch(r.Context(), orgID, userID, req.AnomalyIDs, req.Provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (m *Module) handleQuery(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	result, err := m.svc.Query(r.Context(), orgID, userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleReport(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	result, err := m.svc.GenerateReport(r.Context(), orgID, userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleRootCause(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req RootCauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	result, err := m.svc.AnalyzeRootCause(r.Context(), orgID, userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	orgID, userID, ok := tenant(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !m.checkQuota(w, r, orgID) {
		return
	}

	result, err := m.svc.Chat(r.Context(), orgID, userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type conversationHTTPRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (m *Module) handleAssistantConfirm(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}

	var req conversationHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationID == "" {
		writeProblem(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	result, err := m.svc.ConfirmSuggestion(r.Context(), orgID, req.ConversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleAssistantCancel(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}

	var req conversationHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationID == "" {
		writeProblem(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	result, err := m.svc.CancelSuggestion(orgID, req.ConversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (m *Module) handleAssistantContext(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}

	inventory, err := m.svc.AssistantContext(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if inventory == nil {
		inventory = []AssistantDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": inventory})
}

func (m *Module) handleUsage(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	var records []UsageRecord
	var err error
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		records, err = m.ledger.HistoryByUser(r.Context(), userID, limit, offset)
	} else {
		records, err = m.ledger.HistoryByOrg(r.Context(), orgID, limit, offset)
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "failed to load usage history")
		return
	}
	if records == nil {
		records = []UsageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (m *Module) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}
	days := parseIntParam(r, "days", 30)

	stats, err := m.ledger.Stats(r.Context(), orgID, days)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "failed to compute usage statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (m *Module) handleUsageQuota(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := tenant(w, r)
	if !ok {
		return
	}

	status, err := m.ledger.Quota(r.Context(), orgID, m.cfg.MonthlyQuotaTokens)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "failed to compute quota status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// checkQuota rejects the request with 429 when the organization has spent
// its monthly token quota. A failed quota read is logged and does not
// block the request.
func (m *Module) checkQuota(w http.ResponseWriter, r *http.Request, orgID string) bool {
	if m.cfg.MonthlyQuotaTokens <= 0 {
		return true
	}
	status, err := m.ledger.Quota(r.Context(), orgID, m.cfg.MonthlyQuotaTokens)
	if err != nil {
		m.logger.Warn("quota check failed", zap.Error(err))
		return true
	}
	if status.Exceeded {
		writeProblem(w, http.StatusTooManyRequests, "monthly token quota exceeded")
		return false
	}
	return true
}

// limited applies the per-organization token bucket to LLM-calling routes.
func (m *Module) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(headerOrgID)
		if orgID != "" && !m.orgLimiter.allow(orgID) {
			writeProblem(w, http.StatusTooManyRequests, "too many AI requests, slow down")
			return
		}
		next(w, r)
	}
}

// tenant extracts the tenant identity headers. Writes a 400 problem and
// returns ok=false when the organization header is missing.
func tenant(w http.ResponseWriter, r *http.Request) (orgID, userID string, ok bool) {
	orgID = r.Header.Get(headerOrgID)
	if orgID == "" {
		writeProblem(w, http.StatusBadRequest, headerOrgID+" header is required")
		return "", "", false
	}
	return orgID, r.Header.Get(headerUserID), true
}

// writeServiceError maps pipeline error codes onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case llm.IsTenantAccessDenied(err):
		writeProblem(w, http.StatusForbidden, err.Error())
	case llm.IsNotFound(err):
		writeProblem(w, http.StatusNotFound, err.Error())
	case llm.IsValidationFailure(err):
		writeProblem(w, http.StatusBadRequest, err.Error())
	case llm.IsQuotaExceeded(err):
		writeProblem(w, http.StatusTooManyRequests, err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "an internal error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://sensorvision.io/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func parseIntParam(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// orgRateLimiter is a per-organization token bucket. Entries are capped so
// an adversarial stream of org IDs cannot grow the map without bound.
type orgRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

const maxOrgLimiters = 10000

func newOrgRateLimiter(perMinute, burst int) *orgRateLimiter {
	return &orgRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (l *orgRateLimiter) allow(orgID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[orgID]
	if !ok {
		if len(l.limiters) >= maxOrgLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[orgID] = lim
	}
	return lim.Allow()
}
