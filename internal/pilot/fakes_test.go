package pilot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sensorvision/pilot/pkg/models"
)

// fakeSources is an in-memory Sources implementation with per-method call
// counters, so tests can assert that context assembly stays batched.
type fakeSources struct {
	mu sync.Mutex

	devices   map[string]models.Device
	variables map[string][]models.Variable // By device ID.
	stats     map[int64]models.VariableStats
	latest    map[int64]models.DataPoint
	anomalies map[string]models.Anomaly
	alerts    []models.Alert

	variableQueries int
	statsQueries    int
	latestQueries   int
	anomalyQueries  int

	widgets     []WidgetConfig
	widgetErr   error
	nextWidget  string
	createCalls int
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		devices:    make(map[string]models.Device),
		variables:  make(map[string][]models.Variable),
		stats:      make(map[int64]models.VariableStats),
		latest:     make(map[int64]models.DataPoint),
		anomalies:  make(map[string]models.Anomaly),
		nextWidget: "widget-1",
	}
}

func (f *fakeSources) sources() Sources {
	return Sources{
		Devices:   f,
		Variables: f,
		Stats:     f,
		Anomalies: f,
		Alerts:    f,
		Widgets:   f,
	}
}

func (f *fakeSources) addDevice(d models.Device) {
	f.devices[d.ID] = d
}

func (f *fakeSources) addVariable(v models.Variable) {
	f.variables[v.DeviceID] = append(f.variables[v.DeviceID], v)
}

func (f *fakeSources) addAnomaly(a models.Anomaly) {
	f.anomalies[a.ID] = a
}

func (f *fakeSources) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeSources) DevicesByIDs(ctx context.Context, orgID string, ids []string) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Device
	for _, id := range ids {
		if d, ok := f.devices[id]; ok && d.OrganizationID == orgID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSources) DevicesByOrg(ctx context.Context, orgID string, limit int) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Device
	for _, d := range f.devices {
		if d.OrganizationID == orgID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSources) VariablesByDeviceIDs(ctx context.Context, deviceIDs []string) ([]models.Variable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variableQueries++
	var out []models.Variable
	for _, id := range deviceIDs {
		out = append(out, f.variables[id]...)
	}
	return out, nil
}

func (f *fakeSources) StatsByVariableIDs(ctx context.Context, variableIDs []int64, from, to time.Time) ([]models.VariableStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsQueries++
	var out []models.VariableStats
	for _, id := range variableIDs {
		if s, ok := f.stats[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSources) LatestByVariableIDs(ctx context.Context, variableIDs []int64) ([]models.DataPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestQueries++
	var out []models.DataPoint
	for _, id := range variableIDs {
		if p, ok := f.latest[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSources) AnomalyByID(ctx context.Context, id string) (*models.Anomaly, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.anomalies[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeSources) AnomaliesByDevice(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Anomaly, error) {
	return f.AnomaliesByDevices(ctx, []string{deviceID}, since, limit)
}

func (f *fakeSources) AnomaliesByDevices(ctx context.Context, deviceIDs []string, since time.Time, limit int) ([]models.Anomaly, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalyQueries++
	want := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = true
	}
	var out []models.Anomaly
	for _, a := range f.anomalies {
		if want[a.DeviceID] && a.DetectedAt.After(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSources) AlertByID(ctx context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ID == id {
			al := a
			return &al, nil
		}
	}
	return nil, nil
}

func (f *fakeSources) AlertsByDevices(ctx context.Context, deviceIDs []string, since time.Time, limit int) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = true
	}
	var out []models.Alert
	for _, a := range f.alerts {
		if want[a.DeviceID] && a.TriggeredAt.After(since) {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSources) CreateWidget(ctx context.Context, orgID string, w WidgetConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.widgetErr != nil {
		return "", f.widgetErr
	}
	f.widgets = append(f.widgets, w)
	return f.nextWidget, nil
}
