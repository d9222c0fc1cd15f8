package alerts

import "sort"

// DefaultProfile is used when no profile has been selected
const DefaultProfile = "lettuce"

// PlantProfile holds the built-in targets for one crop
type PlantProfile struct {
	TargetTemperatureC  float64 `json:"target_temperature_c"`
	TargetWaterLevelPct float64 `json:"target_water_level_pct"`
	TargetFlowRateLPM   float64 `json:"target_flow_rate_lpm"`
	LightHours          float64 `json:"light_hours"`
}

var profiles = map[string]PlantProfile{
	"lettuce": {
		TargetTemperatureC:  21.0,
		TargetWaterLevelPct: 65.0,
		TargetFlowRateLPM:   1.0,
		LightHours:          14.0,
	},
	"basil": {
		TargetTemperatureC:  24.0,
		TargetWaterLevelPct: 60.0,
		TargetFlowRateLPM:   1.2,
		LightHours:          16.0,
	},
	"strawberry": {
		TargetTemperatureC:  20.0,
		TargetWaterLevelPct: 70.0,
		TargetFlowRateLPM:   0.8,
		LightHours:          12.0,
	},
}

// Profiles returns a copy of the profile catalog
func Profiles() map[string]PlantProfile {
	out := make(map[string]PlantProfile, len(profiles))
	for name, p := range profiles {
		out[name] = p
	}
	return out
}

// Profile looks up a profile by name
func Profile(name string) (PlantProfile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames returns the catalog names in sorted order
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetsFromProfile converts a profile into evaluator targets
func TargetsFromProfile(p PlantProfile) Targets {
	return Targets{
		TemperatureC:  &p.TargetTemperatureC,
		WaterLevelPct: &p.TargetWaterLevelPct,
		FlowRateLPM:   &p.TargetFlowRateLPM,
	}
}
