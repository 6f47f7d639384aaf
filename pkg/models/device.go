package models

import "time"

// DeviceType categorizes a monitored device.
type DeviceType string

const (
	DeviceTypeSensor     DeviceType = "sensor"
	DeviceTypeGateway    DeviceType = "gateway"
	DeviceTypeMeter      DeviceType = "meter"
	DeviceTypeActuator   DeviceType = "actuator"
	DeviceTypeController DeviceType = "controller"
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeTracker    DeviceType = "tracker"
	DeviceTypeUnknown    DeviceType = "unknown"
)

// DeviceStatus represents the current state of a device.
type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusInactive    DeviceStatus = "inactive"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusUnknown     DeviceStatus = "unknown"
)

// Device represents a telemetry-producing device tracked by SensorVision.
type Device struct {
	ID             string       `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	OrganizationID string       `json:"organization_id"`
	ExternalID     string       `json:"external_id,omitempty" example:"plant-3-compressor-7"`
	Name           string       `json:"name" example:"Compressor 7"`
	Description    string       `json:"description,omitempty"`
	DeviceType     DeviceType   `json:"device_type" example:"sensor"`
	Status         DeviceStatus `json:"status" example:"active"`
	Location       string       `json:"location,omitempty" example:"Plant 3, Line B"`
	Tags           []string     `json:"tags,omitempty"`
	LastSeen       time.Time    `json:"last_seen"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Variable is a named telemetry channel on a device.
type Variable struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name" example:"temperature"`
	DisplayName string    `json:"display_name,omitempty" example:"Bearing Temperature"`
	Unit        string    `json:"unit,omitempty" example:"°C"`
	LastValue   *float64  `json:"last_value,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// DataPoint is a single timestamped measurement for a variable.
type DataPoint struct {
	VariableID int64     `json:"variable_id"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// VariableStats summarizes a variable's readings over a time window.
type VariableStats struct {
	VariableID int64   `json:"variable_id"`
	Avg        float64 `json:"avg"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Count      int64   `json:"count"`
}
