package pilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/models"
)

const explainSystemPrompt = `You are an IoT monitoring assistant for facility operators.
Explain detected sensor anomalies in clear, non-technical language.
Describe what happened, how unusual it is, and what the operator should check first.
Keep the explanation under four short paragraphs. Do not invent readings that are not in the context.`

// ExplainAnomaly generates a plain-language explanation of a detected
// anomaly. Tenant violations and lookup misses return typed errors before
// any model call; model failures come back as a failure result.
func (s *Service) ExplainAnomaly(ctx context.Context, orgID, userID, anomalyID string, provider llm.ProviderID) (*ExplainResult, error) {
	anomaly, device, err := s.resolveAnomaly(ctx, orgID, anomalyID)
	if err != nil {
		return nil, err
	}

	userMessage, err := s.buildExplainContext(ctx, anomaly, device)
	if err != nil {
		s.logger.Error("failed to assemble anomaly context",
			zap.String("anomaly_id", anomalyID), zap.Error(err))
		return s.explainFailure(anomaly, device, "An error occurred while gathering anomaly context"), nil
	}

	resp := s.router.Complete(ctx, &llm.Request{
		Provider:      provider,
		Feature:       llm.FeatureAnomalyExplanation,
		System:        explainSystemPrompt,
		UserMessage:   userMessage,
		MaxTokens:     s.cfg.ExplanationMaxTokens,
		Temperature:   s.temperature(s.cfg.ExplanationTemp),
		ReferenceType: "anomaly",
		ReferenceID:   anomalyID,
	}, orgID, userID)

	result := &ExplainResult{
		AnomalyID:    anomalyID,
		DeviceID:     device.ID,
		DeviceName:   device.Name,
		AnomalyScore: anomaly.Score,
		Severity:     string(anomaly.Severity),
		Success:      resp.Success,
		Provider:     string(resp.Provider),
		ModelID:      resp.Model,
		TokensUsed:   resp.TotalTokens,
		LatencyMs:    resp.LatencyMs,
		GeneratedAt:  s.now().UTC(),
	}
	if resp.Success {
		result.Explanation = resp.Content
	} else {
		result.ErrorMessage = "An error occurred while generating the explanation"
	}
	return result, nil
}

// ExplainBatch explains several anomalies with bounded concurrency. The
// result slice preserves request order; per-item failures are reported in
// place rather than failing the whole batch.
func (s *Service) ExplainBatch(ctx context.Context, orgID, userID string, anomalyIDs []string, provider llm.ProviderID) ([]ExplainResult, error) {
	if len(anomalyIDs) == 0 {
		return nil, newValidationError("at least one anomaly ID is required")
	}
	if len(anomalyIDs) > s.cfg.MaxBatchItems {
		return nil, newValidationError(fmt.Sprintf("batch size exceeds the maximum of %d", s.cfg.MaxBatchItems))
	}

	results := make([]ExplainResult, len(anomalyIDs))
	forEachBounded(ctx, s.cfg.BatchConcurrency, len(anomalyIDs), func(i int) {
		res, err := s.ExplainAnomaly(ctx, orgID, userID, anomalyIDs[i], provider)
		if err != nil {
			results[i] = ExplainResult{
				AnomalyID:    anomalyIDs[i],
				Success:      false,
				ErrorMessage: err.Error(),
				GeneratedAt:  s.now().UTC(),
			}
			return
		}
		results[i] = *res
	})
	return results, nil
}

func (s *Service) resolveAnomaly(ctx context.Context, orgID, anomalyID string) (*models.Anomaly, *models.Device, error) {
	var anomaly *models.Anomaly
	err := s.pool.Run(ctx, func() error {
		var err error
		anomaly, err = s.src.Anomalies.AnomalyByID(ctx, anomalyID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if anomaly == nil {
		return nil, nil, newNotFoundError("anomaly", anomalyID)
	}
	if anomaly.OrganizationID != orgID {
		s.logger.Warn("cross-tenant anomaly access denied",
			zap.String("anomaly_id", anomalyID),
			zap.String("requesting_org", orgID),
			zap.String("owning_org", anomaly.OrganizationID))
		return nil, nil, newTenantAccessError("anomaly", anomalyID)
	}

	device, err := s.resolveDevice(ctx, orgID, anomaly.DeviceID)
	if err != nil {
		return nil, nil, err
	}
	return anomaly, device, nil
}

func (s *Service) buildExplainContext(ctx context.Context, anomaly *models.Anomaly, device *models.Device) (string, error) {
	to := anomaly.DetectedAt
	from := to.Add(-24 * time.Hour)

	dc, err := gatherDeviceContext(ctx, s.src, []models.Device{*device}, s.cfg.MaxVariablesPerDevice, from, to, false)
	if err != nil {
		return "", err
	}

	var related []models.Anomaly
	err = s.pool.Run(ctx, func() error {
		var err error
		related, err = s.src.Anomalies.AnomaliesByDevice(ctx, device.ID, from, s.cfg.MaxRelatedAnomalies+1)
		return err
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Device Information\n")
	fmt.Fprintf(&b, "Name: %s\nType: %s\nStatus: %s\n", device.Name, device.DeviceType, device.Status)
	if device.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", device.Location)
	}

	b.WriteString("\n## Anomaly Details\n")
	fmt.Fprintf(&b, "Type: %s\nSeverity: %s\nScore: %.2f\nDetected at: %s\n",
		anomaly.Type, anomaly.Severity, anomaly.Score, anomaly.DetectedAt.UTC().Format(time.RFC3339))

	b.WriteString("\n## Affected Variables\n")
	if len(anomaly.AffectedVariables) == 0 {
		b.WriteString("Not specified.\n")
	}
	for _, name := range anomaly.AffectedVariables {
		fmt.Fprintf(&b, "- %s", name)
		for _, v := range dc.Variables[device.ID] {
			if v.Name != name {
				continue
			}
			if st, ok := dc.Stats[v.ID]; ok {
				fmt.Fprintf(&b, ": avg %.2f, min %.2f, max %.2f over the last 24h", st.Avg, st.Min, st.Max)
			}
			break
		}
		b.WriteString("\n")
	}

	count := 0
	for _, r := range related {
		if r.ID == anomaly.ID {
			continue
		}
		if count == 0 {
			b.WriteString("\nRecent anomalies on this device:\n")
		}
		fmt.Fprintf(&b, "- %s (%s) at %s\n", r.Type, r.Severity, r.DetectedAt.UTC().Format(time.RFC3339))
		count++
		if count >= s.cfg.MaxRelatedAnomalies {
			break
		}
	}

	b.WriteString("\n## Analysis Request\n")
	b.WriteString("Explain this anomaly to the device operator and suggest what to check first.\n")
	return b.String(), nil
}

func (s *Service) explainFailure(anomaly *models.Anomaly, device *models.Device, msg string) *ExplainResult {
	return &ExplainResult{
		AnomalyID:    anomaly.ID,
		DeviceID:     device.ID,
		DeviceName:   device.Name,
		AnomalyScore: anomaly.Score,
		Severity:     string(anomaly.Severity),
		Success:      false,
		ErrorMessage: msg,
		GeneratedAt:  s.now().UTC(),
	}
}
