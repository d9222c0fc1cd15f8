package models

import "time"

// Metadata keys recognised on telemetry records
const (
	MetadataProfileActive = "profile_active"
	MetadataSource        = "source"
)

// TelemetryReading represents one sensor/actuator sample submitted by a device.
// Unmeasured values are nil.
type TelemetryReading struct {
	DeviceID          string    `json:"device_id,omitempty"`
	TemperatureC      *float64  `json:"temperature_c,omitempty"`
	WaterLevelPct     *float64  `json:"water_level_pct,omitempty"`
	FlowRateLPM       *float64  `json:"flow_rate_lpm,omitempty"`
	HumidityPct       *float64  `json:"humidity_pct,omitempty"`
	LightLux          *float64  `json:"light_lux,omitempty"`
	LightIntensityPct *float64  `json:"light_intensity_pct,omitempty"`
	NutrientAPct      *float64  `json:"nutrient_a_pct,omitempty"`
	MoisturePct       *float64  `json:"moisture_pct,omitempty"`
	BlackoutMode      bool      `json:"blackout_mode"`
	CapturedAt        time.Time `json:"captured_at"`
}

// TelemetryRecord represents a reading retained in history
type TelemetryRecord struct {
	TelemetryReading
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Float returns a pointer to v, for building readings.
func Float(v float64) *float64 {
	return &v
}
