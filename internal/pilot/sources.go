package pilot

import (
	"context"
	"time"

	"github.com/sensorvision/pilot/pkg/models"
)

// Collaborator read interfaces provided by the surrounding platform.
// All lookups are set-based so context assembly never degenerates into
// one query per device or per variable.

// DeviceSource resolves devices under tenant scoping.
type DeviceSource interface {
	// DeviceByID returns the device regardless of tenant; callers must
	// check OrganizationID themselves so cross-tenant access is
	// distinguishable from not-found.
	DeviceByID(ctx context.Context, id string) (*models.Device, error)

	// DevicesByIDs returns the subset of ids owned by the organization.
	DevicesByIDs(ctx context.Context, orgID string, ids []string) ([]models.Device, error)

	// DevicesByOrg returns up to limit devices for the organization.
	DevicesByOrg(ctx context.Context, orgID string, limit int) ([]models.Device, error)
}

// VariableSource resolves telemetry channels for a device set.
type VariableSource interface {
	// VariablesByDeviceIDs returns all variables across the given devices
	// in a single query.
	VariablesByDeviceIDs(ctx context.Context, deviceIDs []string) ([]models.Variable, error)
}

// StatsSource computes windowed statistics for a variable set.
type StatsSource interface {
	// StatsByVariableIDs returns per-variable aggregates over [from, to)
	// in a single query. Variables with no readings in the window are
	// absent from the result.
	StatsByVariableIDs(ctx context.Context, variableIDs []int64, from, to time.Time) ([]models.VariableStats, error)

	// LatestByVariableIDs returns the most recent data point per variable.
	LatestByVariableIDs(ctx context.Context, variableIDs []int64) ([]models.DataPoint, error)
}

// AnomalySource resolves detector findings.
type AnomalySource interface {
	// AnomalyByID returns the anomaly regardless of tenant; callers must
	// check OrganizationID themselves.
	AnomalyByID(ctx context.Context, id string) (*models.Anomaly, error)

	// AnomaliesByDevice returns up to limit anomalies on the device
	// detected since the given time, newest first.
	AnomaliesByDevice(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Anomaly, error)

	// AnomaliesByDevices returns up to limit anomalies across the given
	// devices detected since the given time, newest first, in a single
	// query.
	AnomaliesByDevices(ctx context.Context, deviceIDs []string, since time.Time, limit int) ([]models.Anomaly, error)
}

// AlertSource resolves threshold-rule firings.
type AlertSource interface {
	// AlertByID returns the alert regardless of tenant; callers must
	// check OrganizationID themselves.
	AlertByID(ctx context.Context, id string) (*models.Alert, error)

	// AlertsByDevices returns up to limit alerts across the given devices
	// triggered since the given time, newest first.
	AlertsByDevices(ctx context.Context, deviceIDs []string, since time.Time, limit int) ([]models.Alert, error)
}

// WidgetSink materializes a confirmed widget suggestion on a dashboard.
type WidgetSink interface {
	CreateWidget(ctx context.Context, orgID string, w WidgetConfig) (string, error)
}

// Sources bundles the collaborator interfaces an assembler needs.
type Sources struct {
	Devices   DeviceSource
	Variables VariableSource
	Stats     StatsSource
	Anomalies AnomalySource
	Alerts    AlertSource
	Widgets   WidgetSink
}
