package models

import (
	"fmt"
	"time"

	"github.com/plantbox/plantbox-api/tools/timeparser"
)

// ReadingInput is the inbound telemetry payload accepted over HTTP and the
// ingest queue. The core control metrics are mandatory.
type ReadingInput struct {
	DeviceID          string   `json:"device_id,omitempty" validate:"omitempty,max=128"`
	TemperatureC      *float64 `json:"temperature_c" validate:"required"`
	WaterLevelPct     *float64 `json:"water_level_pct" validate:"required,gte=0,lte=100"`
	FlowRateLPM       *float64 `json:"flow_rate_lpm" validate:"required,gte=0"`
	HumidityPct       *float64 `json:"humidity_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	LightLux          *float64 `json:"light_lux,omitempty" validate:"omitempty,gte=0"`
	LightIntensityPct *float64 `json:"light_intensity_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	NutrientAPct      *float64 `json:"nutrient_a_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	MoisturePct       *float64 `json:"moisture_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	BlackoutMode      bool     `json:"blackout_mode"`
	CapturedAt        string   `json:"captured_at,omitempty"`
}

// ToReading builds the immutable reading. An empty captured_at stays zero
// and is stamped with the receipt time by the pipeline.
func (in ReadingInput) ToReading() (TelemetryReading, error) {
	var captured time.Time
	if in.CapturedAt != "" {
		t, err := timeparser.ParseCapturedAt(in.CapturedAt)
		if err != nil {
			return TelemetryReading{}, fmt.Errorf("captured_at: %w", err)
		}
		captured = t
	}

	return TelemetryReading{
		DeviceID:          in.DeviceID,
		TemperatureC:      in.TemperatureC,
		WaterLevelPct:     in.WaterLevelPct,
		FlowRateLPM:       in.FlowRateLPM,
		HumidityPct:       in.HumidityPct,
		LightLux:          in.LightLux,
		LightIntensityPct: in.LightIntensityPct,
		NutrientAPct:      in.NutrientAPct,
		MoisturePct:       in.MoisturePct,
		BlackoutMode:      in.BlackoutMode,
		CapturedAt:        captured,
	}, nil
}

// FirmwareSensors is the sensor block posted by the device firmware
type FirmwareSensors struct {
	AirTempC          *float64 `json:"air_temp_c"`
	HumidityPct       *float64 `json:"humidity_pct" validate:"omitempty,gte=0,lte=100"`
	LightIntensityPct *float64 `json:"light_intensity_pct" validate:"omitempty,gte=0,lte=100"`
	WaterLevelPct     *float64 `json:"water_level_pct" validate:"omitempty,gte=0,lte=100"`
	NutrientAPct      *float64 `json:"nutrient_a_pct" validate:"omitempty,gte=0,lte=100"`
	MoisturePct       *float64 `json:"moisture_pct" validate:"omitempty,gte=0,lte=100"`
	FlowRateLPM       *float64 `json:"flow_rate_lpm" validate:"omitempty,gte=0"`
}

// FirmwarePayload is the body of the firmware's sendTelemetry call
type FirmwarePayload struct {
	DeviceID     string          `json:"device_id" validate:"required,max=128"`
	Sensors      FirmwareSensors `json:"sensors"`
	BlackoutMode bool            `json:"blackout_mode"`
}

// ToReading maps the firmware sensor names onto a reading
func (p FirmwarePayload) ToReading() TelemetryReading {
	return TelemetryReading{
		DeviceID:          p.DeviceID,
		TemperatureC:      p.Sensors.AirTempC,
		WaterLevelPct:     p.Sensors.WaterLevelPct,
		FlowRateLPM:       p.Sensors.FlowRateLPM,
		HumidityPct:       p.Sensors.HumidityPct,
		LightIntensityPct: p.Sensors.LightIntensityPct,
		NutrientAPct:      p.Sensors.NutrientAPct,
		MoisturePct:       p.Sensors.MoisturePct,
		BlackoutMode:      p.BlackoutMode,
	}
}
