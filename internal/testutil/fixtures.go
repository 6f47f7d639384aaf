package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/sensorvision/pilot/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields after creation as needed.
func NewDevice(orgID string, opts ...func(*models.Device)) models.Device {
	d := models.Device{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		ExternalID:     "test-device",
		Name:           "Test Device",
		DeviceType:     models.DeviceTypeSensor,
		Status:         models.DeviceStatusActive,
		LastSeen:       time.Now().UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName sets the device name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithStatus sets the device status.
func WithStatus(s models.DeviceStatus) func(*models.Device) {
	return func(d *models.Device) { d.Status = s }
}

// WithDeviceType sets the device type.
func WithDeviceType(dt models.DeviceType) func(*models.Device) {
	return func(d *models.Device) { d.DeviceType = dt }
}

// WithLocation sets the device location.
func WithLocation(loc string) func(*models.Device) {
	return func(d *models.Device) { d.Location = loc }
}

// NewVariable returns a Variable bound to the given device.
func NewVariable(deviceID string, opts ...func(*models.Variable)) models.Variable {
	val := 21.5
	v := models.Variable{
		ID:          1,
		DeviceID:    deviceID,
		Name:        "temperature",
		DisplayName: "Temperature",
		Unit:        "°C",
		LastValue:   &val,
		LastUpdated: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&v)
	}
	return v
}

// WithVariableName sets the variable's name and display name.
func WithVariableName(name string) func(*models.Variable) {
	return func(v *models.Variable) {
		v.Name = name
		v.DisplayName = name
	}
}

// WithLastValue sets the variable's most recent reading.
func WithLastValue(val float64) func(*models.Variable) {
	return func(v *models.Variable) { v.LastValue = &val }
}

// WithVariableID sets the variable's ID.
func WithVariableID(id int64) func(*models.Variable) {
	return func(v *models.Variable) { v.ID = id }
}

// NewAnomaly returns an open Anomaly on the given device.
func NewAnomaly(orgID, deviceID string, opts ...func(*models.Anomaly)) models.Anomaly {
	a := models.Anomaly{
		ID:                uuid.New().String(),
		OrganizationID:    orgID,
		DeviceID:          deviceID,
		Type:              "spike",
		Severity:          models.AnomalySeverityHigh,
		Score:             0.9,
		Status:            models.AnomalyStatusOpen,
		AffectedVariables: []string{"temperature"},
		DetectedAt:        time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithSeverity sets the anomaly severity.
func WithSeverity(s models.AnomalySeverity) func(*models.Anomaly) {
	return func(a *models.Anomaly) { a.Severity = s }
}

// WithDetectedAt sets the anomaly detection time.
func WithDetectedAt(t time.Time) func(*models.Anomaly) {
	return func(a *models.Anomaly) { a.DetectedAt = t }
}

// WithAffectedVariables sets the anomaly's affected variable names.
func WithAffectedVariables(names ...string) func(*models.Anomaly) {
	return func(a *models.Anomaly) { a.AffectedVariables = names }
}

// NewAlert returns a triggered Alert on the given device.
func NewAlert(orgID, deviceID string, opts ...func(*models.Alert)) models.Alert {
	al := models.Alert{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		DeviceID:       deviceID,
		RuleName:       "high-temp",
		Variable:       "temperature",
		Operator:       ">",
		Threshold:      80,
		TriggeredValue: 92.4,
		TriggeredAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&al)
	}
	return al
}
