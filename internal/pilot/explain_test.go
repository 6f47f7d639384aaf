package pilot

import (
	"strings"
	"testing"

	"github.com/sensorvision/pilot/internal/testutil"
	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/models"
)

func TestExplainAnomaly(t *testing.T) {
	env := newTestService(t, "The temperature spiked because the cooling loop stalled.")
	device := testutil.NewDevice("org-1", testutil.WithName("Chiller Sensor"))
	env.fake.addDevice(device)
	env.fake.addVariable(testutil.NewVariable(device.ID, testutil.WithVariableID(1)))
	env.fake.stats[1] = models.VariableStats{VariableID: 1, Avg: 22, Min: 18, Max: 41, Count: 500}
	anomaly := testutil.NewAnomaly("org-1", device.ID)
	env.fake.addAnomaly(anomaly)

	result, err := env.svc.ExplainAnomaly(t.Context(), "org-1", "user-1", anomaly.ID, "")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}

	if !result.Success {
		t.Fatalf("unexpected failure: %s", result.ErrorMessage)
	}
	if !strings.Contains(result.Explanation, "cooling loop") {
		t.Errorf("Explanation = %q", result.Explanation)
	}
	if result.DeviceName != "Chiller Sensor" {
		t.Errorf("DeviceName = %q", result.DeviceName)
	}
	if result.Severity != string(models.AnomalySeverityHigh) {
		t.Errorf("Severity = %q", result.Severity)
	}

	rows := env.usageRows(t, "org-1")
	if len(rows) != 1 {
		t.Fatalf("usage rows = %d, want 1", len(rows))
	}
	if rows[0].Feature != string(llm.FeatureAnomalyExplanation) {
		t.Errorf("Feature = %q", rows[0].Feature)
	}
	if rows[0].ReferenceType != "anomaly" || rows[0].ReferenceID != anomaly.ID {
		t.Errorf("reference = %q/%q", rows[0].ReferenceType, rows[0].ReferenceID)
	}
}

func TestExplainAnomalyCrossTenant(t *testing.T) {
	env := newTestService(t, "should never be generated")
	device := testutil.NewDevice("org-2")
	env.fake.addDevice(device)
	anomaly := testutil.NewAnomaly("org-2", device.ID)
	env.fake.addAnomaly(anomaly)

	_, err := env.svc.ExplainAnomaly(t.Context(), "org-1", "user-1", anomaly.ID, "")
	if !llm.IsTenantAccessDenied(err) {
		t.Fatalf("expected tenant access denial, got %v", err)
	}

	// The security failure happens before any model call or billing.
	if env.provider.calls != 0 {
		t.Errorf("adapter calls = %d, want 0", env.provider.calls)
	}
	if rows := env.usageRows(t, "org-1"); len(rows) != 0 {
		t.Errorf("usage rows = %d, want 0", len(rows))
	}
	if rows := env.usageRows(t, "org-2"); len(rows) != 0 {
		t.Errorf("usage rows for owning org = %d, want 0", len(rows))
	}
}

func TestExplainAnomalyNotFound(t *testing.T) {
	env := newTestService(t, "")

	_, err := env.svc.ExplainAnomaly(t.Context(), "org-1", "user-1", "missing", "")
	if !llm.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestExplainBatchPreservesOrder(t *testing.T) {
	env := newTestService(t, "explained")
	device := testutil.NewDevice("org-1")
	env.fake.addDevice(device)

	first := testutil.NewAnomaly("org-1", device.ID)
	second := testutil.NewAnomaly("org-1", device.ID)
	env.fake.addAnomaly(first)
	env.fake.addAnomaly(second)

	results, err := env.svc.ExplainBatch(t.Context(), "org-1", "user-1",
		[]string{first.ID, "missing", second.ID}, "")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	if results[0].AnomalyID != first.ID || !results[0].Success {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].AnomalyID != "missing" || results[1].Success {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].AnomalyID != second.ID || !results[2].Success {
		t.Errorf("results[2] = %+v", results[2])
	}
}

func TestExplainBatchSizeCap(t *testing.T) {
	env := newTestService(t, "")

	ids := make([]string, env.svc.cfg.MaxBatchItems+1)
	for i := range ids {
		ids[i] = "anom"
	}
	_, err := env.svc.ExplainBatch(t.Context(), "org-1", "user-1", ids, "")
	if !llm.IsValidationFailure(err) {
		t.Errorf("expected validation failure, got %v", err)
	}

	if _, err := env.svc.ExplainBatch(t.Context(), "org-1", "user-1", nil, ""); !llm.IsValidationFailure(err) {
		t.Errorf("expected validation failure for empty batch, got %v", err)
	}
}
