package devices

import (
	"sync"

	"github.com/plantbox/plantbox-api/internal/alerts"
	"github.com/plantbox/plantbox-api/internal/models"
)

// DefaultConfigState returns the single-device configuration at startup
func DefaultConfigState() models.ConfigState {
	p, _ := alerts.Profile(alerts.DefaultProfile)
	return models.ConfigState{
		TargetTemperatureC:  p.TargetTemperatureC,
		TargetWaterLevelPct: p.TargetWaterLevelPct,
		TargetFlowRateLPM:   p.TargetFlowRateLPM,
		LightSchedule: models.LightSchedule{
			Start: "06:00:00",
			End:   "20:00:00",
		},
		NutrientSchedule: models.NutrientSchedule{
			Start:  "08:00:00",
			End:    "08:30:00",
			DoseML: 15,
		},
		ActiveProfile: alerts.DefaultProfile,
	}
}

// StateHolder keeps the single-device configuration in memory
type StateHolder struct {
	mu    sync.RWMutex
	state models.ConfigState
}

// NewStateHolder creates a holder seeded with DefaultConfigState
func NewStateHolder() *StateHolder {
	return &StateHolder{state: DefaultConfigState()}
}

// Get returns the current configuration
func (h *StateHolder) Get() models.ConfigState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Replace swaps the whole configuration; the last write wins
func (h *StateHolder) Replace(state models.ConfigState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}
