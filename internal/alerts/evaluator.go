package alerts

import (
	"fmt"
	"math"

	"github.com/plantbox/plantbox-api/internal/models"
)

// Threshold is the relative deviation above which a metric alerts
const Threshold = 0.10

// Targets holds the desired value of each monitored metric. Nil targets are not checked.
type Targets struct {
	TemperatureC  *float64
	WaterLevelPct *float64
	FlowRateLPM   *float64
}

// TargetsFromState builds targets from the single-device configuration
func TargetsFromState(cfg models.ConfigState) Targets {
	return Targets{
		TemperatureC:  &cfg.TargetTemperatureC,
		WaterLevelPct: &cfg.TargetWaterLevelPct,
		FlowRateLPM:   &cfg.TargetFlowRateLPM,
	}
}

// TargetsFromDevice builds targets from the midpoint of each known device range.
// Keys outside the known vocabulary are ignored.
func TargetsFromDevice(cfg models.DeviceConfig) Targets {
	var t Targets
	if r, ok := cfg.Targets[models.TargetAirTemp]; ok {
		t.TemperatureC = models.Float(r.Midpoint())
	}
	if r, ok := cfg.Targets[models.TargetWaterLevel]; ok {
		t.WaterLevelPct = models.Float(r.Midpoint())
	}
	if r, ok := cfg.Targets[models.TargetFlowRate]; ok {
		t.FlowRateLPM = models.Float(r.Midpoint())
	}
	return t
}

// Deviation returns |actual-target|/target, or 0 when target is not positive
func Deviation(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Abs(actual-target) / target
}

func drifted(actual, target *float64) bool {
	if actual == nil || target == nil {
		return false
	}
	return Deviation(*actual, *target) > Threshold
}

// Evaluate checks a reading against configured targets. Alerts follow the
// order temperature, water level, flow rate, blackout.
func Evaluate(reading models.TelemetryReading, targets Targets) []string {
	var alerts []string
	if drifted(reading.TemperatureC, targets.TemperatureC) {
		alerts = append(alerts, "Temperature drift above 10 percent.")
	}
	if drifted(reading.WaterLevelPct, targets.WaterLevelPct) {
		alerts = append(alerts, "Water level drift above 10 percent.")
	}
	if drifted(reading.FlowRateLPM, targets.FlowRateLPM) {
		alerts = append(alerts, "Flow rate drift above 10 percent.")
	}
	if reading.BlackoutMode {
		alerts = append(alerts, "Blackout mode triggered.")
	}
	return alerts
}

// EvaluateProfile checks a reading against a named profile's built-in targets.
// Unknown profiles produce no alerts.
func EvaluateProfile(reading models.TelemetryReading, profileName string) []string {
	profile, ok := Profile(profileName)
	if !ok {
		return nil
	}
	targets := TargetsFromProfile(profile)

	var alerts []string
	if drifted(reading.TemperatureC, targets.TemperatureC) {
		alerts = append(alerts, fmt.Sprintf("Temperature outside %s profile.", profileName))
	}
	if drifted(reading.WaterLevelPct, targets.WaterLevelPct) {
		alerts = append(alerts, fmt.Sprintf("Water level outside %s profile.", profileName))
	}
	if drifted(reading.FlowRateLPM, targets.FlowRateLPM) {
		alerts = append(alerts, fmt.Sprintf("Flow rate outside %s profile.", profileName))
	}
	return alerts
}
