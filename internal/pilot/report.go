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

const reportSystemPrompt = `You are an IoT monitoring analyst writing operational reports.
Structure every report as markdown with exactly these sections:
## Executive Summary
## Key Findings
## Recommendations
Key Findings and Recommendations must be bullet lists. Base everything on the
telemetry context provided; never invent readings.`

var reportTitles = map[ReportType]string{
	ReportDailySummary:    "Daily Operations Summary",
	ReportWeeklyReview:    "Weekly Operations Review",
	ReportMonthlyAnalysis: "Monthly Operations Analysis",
	ReportAnomalyReport:   "Anomaly Report",
	ReportDeviceHealth:    "Device Health Report",
	ReportEnergyAnalysis:  "Energy Consumption Analysis",
	ReportCustom:          "Custom Report",
}

// reportWindowDays maps report types to their default lookback period.
var reportWindowDays = map[ReportType]int{
	ReportDailySummary:    1,
	ReportWeeklyReview:    7,
	ReportMonthlyAnalysis: 30,
	ReportAnomalyReport:   7,
	ReportDeviceHealth:    7,
	ReportEnergyAnalysis:  7,
	ReportCustom:          7,
}

// GenerateReport produces a narrative report over a device set and period,
// with the executive summary, key findings, and recommendations parsed out
// of the generated markdown.
func (s *Service) GenerateReport(ctx context.Context, orgID, userID string, req *ReportRequest) (*ReportResult, error) {
	windowDays, ok := reportWindowDays[req.ReportType]
	if !ok {
		return nil, newValidationError(fmt.Sprintf("unsupported report type %q", req.ReportType))
	}

	customPrompt := ""
	if req.ReportType == ReportCustom {
		if strings.TrimSpace(req.CustomPrompt) == "" {
			return nil, newValidationError("a custom prompt is required for CUSTOM reports")
		}
		if err := s.sanitizer.Validate(req.CustomPrompt, "custom_prompt", s.cfg.MaxCustomPromptLength); err != nil {
			return nil, err
		}
		customPrompt = s.sanitizer.SanitizeCustomPrompt(req.CustomPrompt)
	}

	periodEnd := s.now().UTC()
	if req.PeriodEnd != nil {
		periodEnd = req.PeriodEnd.UTC()
	}
	periodStart := periodEnd.AddDate(0, 0, -windowDays)
	if req.PeriodStart != nil {
		periodStart = req.PeriodStart.UTC()
	}
	if !periodStart.Before(periodEnd) {
		return nil, newValidationError("the report period start must precede its end")
	}

	devices, err := s.resolveDeviceSet(ctx, orgID, req.DeviceIDs, s.cfg.MaxDevicesForReport)
	if err != nil {
		return nil, err
	}

	result := &ReportResult{
		ReportID:    uuid.New().String(),
		ReportType:  req.ReportType,
		Title:       reportTitles[req.ReportType],
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		GeneratedAt: s.now().UTC(),
	}
	for _, d := range devices {
		result.DeviceIDs = append(result.DeviceIDs, d.ID)
	}
	if len(devices) == 0 {
		result.ErrorMessage = "No devices found for this report"
		return result, nil
	}

	userMessage, err := s.buildReportContext(ctx, req.ReportType, customPrompt, devices, periodStart, periodEnd)
	if err != nil {
		s.logger.Error("failed to assemble report context",
			zap.String("org_id", orgID),
			zap.String("report_type", string(req.ReportType)),
			zap.Error(err))
		result.ErrorMessage = "An error occurred while gathering report data"
		return result, nil
	}

	resp := s.router.Complete(ctx, &llm.Request{
		Provider:      req.Provider,
		Feature:       llm.FeatureReportGeneration,
		System:        reportSystemPrompt,
		UserMessage:   userMessage,
		MaxTokens:     s.cfg.ReportMaxTokens,
		Temperature:   s.temperature(s.cfg.ReportTemperature),
		ReferenceType: "report",
		ReferenceID:   result.ReportID,
	}, orgID, userID)

	result.Success = resp.Success
	result.Provider = string(resp.Provider)
	result.ModelID = resp.Model
	result.TokensUsed = resp.TotalTokens
	result.LatencyMs = resp.LatencyMs
	if !resp.Success {
		result.ErrorMessage = "An error occurred while generating the report"
		return result, nil
	}

	result.Content = resp.Content
	result.ExecutiveSummary = extractSection(resp.Content, "Executive Summary")
	result.KeyFindings = extractBullets(extractSection(resp.Content, "Key Findings"), 10)
	result.Recommendations = extractBullets(extractSection(resp.Content, "Recommendations"), 10)
	return result, nil
}

func (s *Service) buildReportContext(ctx context.Context, reportType ReportType, customPrompt string, devices []models.Device, periodStart, periodEnd time.Time) (string, error) {
	dc, err := gatherDeviceContext(ctx, s.src, devices, s.cfg.MaxVariablesPerDevice, periodStart, periodEnd, false)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Report type: %s\nPeriod: %s to %s\n\n",
		reportType, periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339))
	b.WriteString(dc.render())

	if reportType == ReportAnomalyReport {
		deviceIDs := make([]string, len(devices))
		for i, d := range devices {
			deviceIDs[i] = d.ID
		}
		var anomalies []models.Anomaly
		err := s.pool.Run(ctx, func() error {
			var err error
			anomalies, err = s.src.Anomalies.AnomaliesByDevices(ctx, deviceIDs, periodStart, s.cfg.MaxAnomaliesInReport)
			return err
		})
		if err != nil {
			return "", err
		}

		b.WriteString("## Detected Anomalies\n")
		if len(anomalies) == 0 {
			b.WriteString("None in this period.\n")
		}
		deviceName := make(map[string]string, len(devices))
		for _, d := range devices {
			deviceName[d.ID] = d.Name
		}
		for _, a := range anomalies {
			fmt.Fprintf(&b, "- %s on %s (severity %s, score %.2f) at %s\n",
				a.Type, deviceName[a.DeviceID], a.Severity, a.Score, a.DetectedAt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if customPrompt != "" {
		b.WriteString("## Report Focus\n")
		b.WriteString(customPrompt)
		b.WriteString("\n")
	}

	b.WriteString("\nWrite the report now.\n")
	return b.String(), nil
}
