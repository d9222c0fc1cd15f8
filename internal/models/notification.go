package models

import "time"

// Notification levels
const (
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Notification represents an alert raised while ingesting a reading
type Notification struct {
	ID        string            `json:"id"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
	DeviceID  string            `json:"device_id,omitempty"`
	Telemetry *TelemetryReading `json:"telemetry,omitempty"`
}
