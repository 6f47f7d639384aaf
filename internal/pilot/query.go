package pilot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
)

const querySystemPrompt = `You are an IoT monitoring assistant. Answer questions about the
user's devices and sensor readings using only the telemetry context provided.
Be specific: cite device names, values, and units. If the context does not contain
enough data to answer, say so plainly instead of guessing.`

// Query answers a natural-language question over the tenant's telemetry.
// The data window defaults to the last 24 hours.
func (s *Service) Query(ctx context.Context, orgID, userID string, req *QueryRequest) (*QueryResult, error) {
	if err := s.sanitizer.Validate(req.Query, "query", s.cfg.MaxQueryLength); err != nil {
		return nil, err
	}
	query := s.sanitizer.SanitizeQuery(req.Query)
	if query == "" {
		return nil, newValidationError("query must not be empty")
	}

	to := s.now().UTC()
	if req.To != nil {
		to = req.To.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if req.From != nil {
		from = req.From.UTC()
	}
	if !from.Before(to) {
		return nil, newValidationError("the time window start must precede its end")
	}

	devices, err := s.resolveDeviceSet(ctx, orgID, req.DeviceIDs, s.cfg.MaxDevicesForQuery)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Query: query, GeneratedAt: s.now().UTC()}
	if len(devices) == 0 {
		result.ErrorMessage = "No devices found for this query"
		return result, nil
	}

	dc, err := gatherDeviceContext(ctx, s.src, devices, s.cfg.MaxVariablesPerDevice, from, to, true)
	if err != nil {
		s.logger.Error("failed to assemble query context",
			zap.String("org_id", orgID), zap.Error(err))
		result.ErrorMessage = "An error occurred while gathering telemetry data"
		return result, nil
	}

	resp := s.router.Complete(ctx, &llm.Request{
		Provider:    req.Provider,
		Feature:     llm.FeatureNaturalQuery,
		System:      querySystemPrompt,
		UserMessage: dc.render() + "\n## Question\n" + query,
		MaxTokens:   s.cfg.QueryMaxTokens,
		Temperature: s.temperature(s.cfg.QueryTemperature),
	}, orgID, userID)

	result.Success = resp.Success
	result.Provider = string(resp.Provider)
	result.ModelID = resp.Model
	result.TokensUsed = resp.TotalTokens
	result.LatencyMs = resp.LatencyMs
	if resp.Success {
		result.Answer = resp.Content
		result.SupportingData = dc.supportingPoints(s.cfg.MaxSupportingDataPoints)
	} else {
		result.ErrorMessage = "An error occurred while answering the query"
	}
	return result, nil
}
