package pilot

import (
	"strings"
	"testing"
	"time"

	"github.com/sensorvision/pilot/internal/testutil"
	"github.com/sensorvision/pilot/pkg/llm"
)

const cannedAnalysis = `## Issue Summary
The chiller's compressor drew excess current for forty minutes.

## Root Causes (ranked by likelihood)
1. Clogged condenser coil restricting heat exchange.
2. Low refrigerant charge.

## Contributing Factors
- Ambient temperature peaked at 38 °C.

## Corrective Actions
- Clean the condenser coil.

## Preventive Measures
- Add coil cleaning to the monthly maintenance checklist.

## Confidence Level
80% based on the current draw profile.
`

func TestAnalyzeRootCauseFromAnomaly(t *testing.T) {
	env := newTestService(t, cannedAnalysis)
	device := testutil.NewDevice("org-1", testutil.WithName("Chiller"))
	env.fake.addDevice(device)
	env.fake.addVariable(testutil.NewVariable(device.ID, testutil.WithVariableID(1)))
	anomaly := testutil.NewAnomaly("org-1", device.ID)
	env.fake.addAnomaly(anomaly)

	result, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:   anomaly.ID,
		SourceType: SourceAnomaly,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	if !strings.Contains(result.IssueSummary, "compressor drew excess current") {
		t.Errorf("IssueSummary = %q", result.IssueSummary)
	}
	if result.ConfidenceLevel != 80 {
		t.Errorf("ConfidenceLevel = %d, want 80", result.ConfidenceLevel)
	}
	if result.DeviceName != "Chiller" {
		t.Errorf("DeviceName = %q", result.DeviceName)
	}

	rows := env.usageRows(t, "org-1")
	if len(rows) != 1 || rows[0].Feature != string(llm.FeatureRootCause) {
		t.Errorf("unexpected usage rows: %+v", rows)
	}
	if rows[0].ReferenceType != "anomaly" || rows[0].ReferenceID != anomaly.ID {
		t.Errorf("reference = %q/%q", rows[0].ReferenceType, rows[0].ReferenceID)
	}
}

func TestAnalyzeRootCauseFromAlert(t *testing.T) {
	env := newTestService(t, cannedAnalysis)
	device := testutil.NewDevice("org-1")
	env.fake.addDevice(device)
	alert := testutil.NewAlert("org-1", device.ID)
	env.fake.alerts = append(env.fake.alerts, alert)

	var captured *llm.Request
	env.provider.onComplete = func(req *llm.Request) { captured = req }

	result, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:   alert.ID,
		SourceType: SourceAlert,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	if captured == nil {
		t.Fatal("adapter was not called")
	}
	if !strings.Contains(captured.UserMessage, `Alert rule "high-temp" fired`) {
		t.Errorf("prompt missing alert description:\n%s", captured.UserMessage)
	}
	if captured.ReferenceType != "alert" {
		t.Errorf("ReferenceType = %q", captured.ReferenceType)
	}
}

func TestAnalyzeRootCauseDefaultConfidence(t *testing.T) {
	env := newTestService(t, "An unstructured answer with no sections at all.")
	device := testutil.NewDevice("org-1")
	env.fake.addDevice(device)
	anomaly := testutil.NewAnomaly("org-1", device.ID)
	env.fake.addAnomaly(anomaly)

	result, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:   anomaly.ID,
		SourceType: SourceAnomaly,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.ConfidenceLevel != defaultConfidence {
		t.Errorf("ConfidenceLevel = %d, want %d", result.ConfidenceLevel, defaultConfidence)
	}
	if result.IssueSummary != "" {
		t.Errorf("IssueSummary = %q, want empty", result.IssueSummary)
	}
	if result.FullAnalysis == "" {
		t.Error("FullAnalysis should carry the raw content")
	}
}

func TestAnalyzeRootCauseValidation(t *testing.T) {
	env := newTestService(t, "")

	if _, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceType: SourceAnomaly,
	}); !llm.IsValidationFailure(err) {
		t.Errorf("expected validation failure for missing source ID, got %v", err)
	}

	if _, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:   "x",
		SourceType: "TICKET",
	}); !llm.IsValidationFailure(err) {
		t.Errorf("expected validation failure for unknown source type, got %v", err)
	}
}

func TestAnalyzeRootCauseCrossTenantAlert(t *testing.T) {
	env := newTestService(t, "should not be called")
	device := testutil.NewDevice("org-2")
	env.fake.addDevice(device)
	alert := testutil.NewAlert("org-2", device.ID)
	env.fake.alerts = append(env.fake.alerts, alert)

	_, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:   alert.ID,
		SourceType: SourceAlert,
	})
	if !llm.IsTenantAccessDenied(err) {
		t.Fatalf("expected tenant access denial, got %v", err)
	}
	if env.provider.calls != 0 {
		t.Errorf("adapter calls = %d, want 0", env.provider.calls)
	}
}

func TestAnalyzeRootCauseLookbackWindow(t *testing.T) {
	env := newTestService(t, cannedAnalysis)
	device := testutil.NewDevice("org-1")
	env.fake.addDevice(device)
	detected := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	anomaly := testutil.NewAnomaly("org-1", device.ID, testutil.WithDetectedAt(detected))
	env.fake.addAnomaly(anomaly)

	// An anomaly 50 hours before the source is outside the 48h lookback.
	old := testutil.NewAnomaly("org-1", device.ID, testutil.WithDetectedAt(detected.Add(-50*time.Hour)))
	env.fake.addAnomaly(old)
	recent := testutil.NewAnomaly("org-1", device.ID, testutil.WithDetectedAt(detected.Add(-2*time.Hour)))
	env.fake.addAnomaly(recent)

	var captured *llm.Request
	env.provider.onComplete = func(req *llm.Request) { captured = req }

	_, err := env.svc.AnalyzeRootCause(t.Context(), "org-1", "user-1", &RootCauseRequest{
		SourceID:      anomaly.ID,
		SourceType:    SourceAnomaly,
		LookbackHours: 48,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if captured == nil {
		t.Fatal("adapter was not called")
	}
	if !strings.Contains(captured.UserMessage, "Telemetry (last 48h)") {
		t.Error("prompt should reflect the requested lookback window")
	}
	if !strings.Contains(captured.UserMessage, "Related Anomalies") {
		t.Error("prompt should list related anomalies")
	}
}
