package pilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/models"
)

const rootCauseSystemPrompt = `You are an IoT reliability engineer performing root cause analysis.
Structure your analysis as markdown with exactly these sections:
## Issue Summary
## Root Causes (ranked by likelihood)
## Contributing Factors
## Corrective Actions
## Preventive Measures
## Confidence Level
State the confidence as a percentage. Base everything on the telemetry context
provided; call out missing data instead of speculating.`

// AnalyzeRootCause investigates an anomaly or alert and returns a ranked
// analysis with a parsed issue summary and confidence percentage.
func (s *Service) AnalyzeRootCause(ctx context.Context, orgID, userID string, req *RootCauseRequest) (*RootCauseResult, error) {
	if req.SourceID == "" {
		return nil, newValidationError("a source ID is required")
	}

	additional := ""
	if req.AdditionalContext != "" {
		if err := s.sanitizer.Validate(req.AdditionalContext, "additional_context", s.cfg.MaxContextLength); err != nil {
			return nil, err
		}
		additional = s.sanitizer.Sanitize(req.AdditionalContext, "additional_context")
	}

	lookback := req.LookbackHours
	if lookback <= 0 {
		lookback = s.cfg.RootCauseLookbackHours
	}

	issue, device, err := s.resolveRootCauseSource(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	result := &RootCauseResult{
		AnalysisID:  uuid.New().String(),
		SourceID:    req.SourceID,
		SourceType:  req.SourceType,
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		GeneratedAt: s.now().UTC(),
	}

	userMessage, err := s.buildRootCauseContext(ctx, issue, device, lookback, additional)
	if err != nil {
		s.logger.Error("failed to assemble root cause context",
			zap.String("source_id", req.SourceID),
			zap.String("source_type", string(req.SourceType)),
			zap.Error(err))
		result.ErrorMessage = "An error occurred while gathering diagnostic data"
		return result, nil
	}

	resp := s.router.Complete(ctx, &llm.Request{
		Provider:      req.Provider,
		Feature:       llm.FeatureRootCause,
		System:        rootCauseSystemPrompt,
		UserMessage:   userMessage,
		MaxTokens:     s.cfg.RootCauseMaxTokens,
		Temperature:   s.temperature(s.cfg.RootCauseTemp),
		ReferenceType: strings.ToLower(string(req.SourceType)),
		ReferenceID:   req.SourceID,
	}, orgID, userID)

	result.Success = resp.Success
	result.Provider = string(resp.Provider)
	result.ModelID = resp.Model
	result.TokensUsed = resp.TotalTokens
	result.LatencyMs = resp.LatencyMs
	if !resp.Success {
		result.ErrorMessage = "An error occurred while analyzing the root cause"
		return result, nil
	}

	result.FullAnalysis = resp.Content
	result.IssueSummary = extractSection(resp.Content, "Issue Summary")
	result.ConfidenceLevel = parseConfidence(resp.Content)
	return result, nil
}

// rootCauseIssue is the source event normalized for prompt rendering.
type rootCauseIssue struct {
	id          string
	description string
	occurredAt  time.Time
	variables   []string
}

func (s *Service) resolveRootCauseSource(ctx context.Context, orgID string, req *RootCauseRequest) (*rootCauseIssue, *models.Device, error) {
	switch req.SourceType {
	case SourceAnomaly:
		anomaly, device, err := s.resolveAnomaly(ctx, orgID, req.SourceID)
		if err != nil {
			return nil, nil, err
		}
		return &rootCauseIssue{
			id: anomaly.ID,
			description: fmt.Sprintf("Anomaly of type %s, severity %s, score %.2f",
				anomaly.Type, anomaly.Severity, anomaly.Score),
			occurredAt: anomaly.DetectedAt,
			variables:  anomaly.AffectedVariables,
		}, device, nil

	case SourceAlert:
		var alert *models.Alert
		err := s.pool.Run(ctx, func() error {
			var err error
			alert, err = s.src.Alerts.AlertByID(ctx, req.SourceID)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		if alert == nil {
			return nil, nil, newNotFoundError("alert", req.SourceID)
		}
		if alert.OrganizationID != orgID {
			s.logger.Warn("cross-tenant alert access denied",
				zap.String("alert_id", req.SourceID),
				zap.String("requesting_org", orgID),
				zap.String("owning_org", alert.OrganizationID))
			return nil, nil, newTenantAccessError("alert", req.SourceID)
		}
		device, err := s.resolveDevice(ctx, orgID, alert.DeviceID)
		if err != nil {
			return nil, nil, err
		}
		return &rootCauseIssue{
			id: alert.ID,
			description: fmt.Sprintf("Alert rule %q fired: %s %s %.2f (observed %.2f)",
				alert.RuleName, alert.Variable, alert.Operator, alert.Threshold, alert.TriggeredValue),
			occurredAt: alert.TriggeredAt,
			variables:  []string{alert.Variable},
		}, device, nil

	default:
		return nil, nil, newValidationError(fmt.Sprintf("unsupported source type %q", req.SourceType))
	}
}

func (s *Service) buildRootCauseContext(ctx context.Context, issue *rootCauseIssue, device *models.Device, lookbackHours int, additional string) (string, error) {
	to := issue.occurredAt
	from := to.Add(-time.Duration(lookbackHours) * time.Hour)

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
	b.WriteString("## Issue\n")
	fmt.Fprintf(&b, "%s\nOccurred at: %s\n", issue.description, issue.occurredAt.UTC().Format(time.RFC3339))
	if len(issue.variables) > 0 {
		fmt.Fprintf(&b, "Involved variables: %s\n", strings.Join(issue.variables, ", "))
	}

	fmt.Fprintf(&b, "\n## Telemetry (last %dh)\n", lookbackHours)
	b.WriteString(dc.render())

	count := 0
	for _, r := range related {
		if r.ID == issue.id {
			continue
		}
		if count == 0 {
			b.WriteString("## Related Anomalies\n")
		}
		fmt.Fprintf(&b, "- %s (%s, score %.2f) at %s\n",
			r.Type, r.Severity, r.Score, r.DetectedAt.UTC().Format(time.RFC3339))
		count++
		if count >= s.cfg.MaxRelatedAnomalies {
			break
		}
	}
	if count > 0 {
		b.WriteString("\n")
	}

	if additional != "" {
		b.WriteString("## Operator Notes\n")
		b.WriteString(additional)
		b.WriteString("\n\n")
	}

	b.WriteString("Perform the root cause analysis now.\n")
	return b.String(), nil
}
