package models

import "time"

// Known target vocabulary for DeviceConfig.Targets
const (
	TargetAirTemp    = "air_temp"
	TargetHumidity   = "humidity"
	TargetWaterLevel = "water_level"
	TargetFlowRate   = "flow_rate"
)

// LightSchedule is a daily on/off window, times formatted HH:MM:SS
type LightSchedule struct {
	Start string `json:"start" validate:"required,timeofday"`
	End   string `json:"end" validate:"required,timeofday"`
}

// NutrientSchedule is a daily dosing window
type NutrientSchedule struct {
	Start  string  `json:"start" validate:"required,timeofday"`
	End    string  `json:"end" validate:"required,timeofday"`
	DoseML float64 `json:"dose_ml" validate:"gte=0"`
}

// ConfigState is the single-device control configuration
type ConfigState struct {
	TargetTemperatureC  float64          `json:"target_temperature_c" validate:"gte=0"`
	TargetWaterLevelPct float64          `json:"target_water_level_pct" validate:"gte=0,lte=100"`
	TargetFlowRateLPM   float64          `json:"target_flow_rate_lpm" validate:"gte=0"`
	LightSchedule       LightSchedule    `json:"light_schedule"`
	NutrientSchedule    NutrientSchedule `json:"nutrient_schedule"`
	ActiveProfile       string           `json:"active_profile" validate:"omitempty,profile"`
}

// TargetRange is the acceptable band for one metric
type TargetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Midpoint returns the centre of the range
func (r TargetRange) Midpoint() float64 {
	return (r.Min + r.Max) / 2
}

// Camera holds the device camera metadata
type Camera struct {
	Enabled   bool   `json:"enabled"`
	StreamURL string `json:"stream_url,omitempty"`
}

// DeviceConfig represents the stored configuration of one hardware unit.
// IsOnline is derived from LastSeen on every read and is never stored.
type DeviceConfig struct {
	HardwareID    string                 `json:"hardware_id"`
	DisplayName   string                 `json:"display_name"`
	OwnerID       string                 `json:"owner_id"`
	LightSchedule LightSchedule          `json:"light_schedule"`
	Targets       map[string]TargetRange `json:"targets"`
	ActiveProfile string                 `json:"active_profile,omitempty"`
	Camera        Camera                 `json:"camera"`
	LastSeen      *time.Time             `json:"last_seen,omitempty"`
	IsOnline      bool                   `json:"is_online"`
	UpdatedAt     time.Time              `json:"updated_at"`
}
