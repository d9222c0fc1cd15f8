package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/models"
)

// sensor keys inside the persisted "sensors" sub-document
const (
	sensorAirTemp        = "air_temp_c"
	sensorWaterLevel     = "water_level_pct"
	sensorFlowRate       = "flow_rate_lpm"
	sensorHumidity       = "humidity_pct"
	sensorLightLux       = "light_lux"
	sensorLightIntensity = "light_intensity_pct"
	sensorNutrientA      = "nutrient_a_pct"
	sensorMoisture       = "moisture_pct"
)

func readingSensors(r *models.TelemetryReading) []struct {
	key   string
	value **float64
} {
	return []struct {
		key   string
		value **float64
	}{
		{sensorAirTemp, &r.TemperatureC},
		{sensorWaterLevel, &r.WaterLevelPct},
		{sensorFlowRate, &r.FlowRateLPM},
		{sensorHumidity, &r.HumidityPct},
		{sensorLightLux, &r.LightLux},
		{sensorLightIntensity, &r.LightIntensityPct},
		{sensorNutrientA, &r.NutrientAPct},
		{sensorMoisture, &r.MoisturePct},
	}
}

// ReadingToDocument converts a reading into its stored form
func ReadingToDocument(r models.TelemetryReading) docstore.Document {
	sensors := make(map[string]any)
	for _, s := range readingSensors(&r) {
		if *s.value != nil {
			sensors[s.key] = **s.value
		}
	}

	doc := docstore.Document{
		"sensors":       sensors,
		"blackout_mode": r.BlackoutMode,
		"captured_at":   r.CapturedAt,
	}
	if r.DeviceID != "" {
		doc["device_id"] = r.DeviceID
	}
	return doc
}

// DocumentToReading converts a stored reading back into the model
func DocumentToReading(doc docstore.Document) (models.TelemetryReading, error) {
	var r models.TelemetryReading
	r.DeviceID = asString(doc["device_id"])
	r.BlackoutMode, _ = doc["blackout_mode"].(bool)

	captured, err := asTime(doc["captured_at"])
	if err != nil {
		return r, fmt.Errorf("invalid captured_at: %w", err)
	}
	r.CapturedAt = captured

	sensors, _ := doc["sensors"].(map[string]any)
	for _, s := range readingSensors(&r) {
		raw, ok := sensors[s.key]
		if !ok || raw == nil {
			continue
		}
		v, err := asFloat(raw)
		if err != nil {
			return r, fmt.Errorf("invalid sensor %s: %w", s.key, err)
		}
		*s.value = models.Float(v)
	}
	return r, nil
}

// TelemetryToDocument converts a record into its stored form
func TelemetryToDocument(rec models.TelemetryRecord) docstore.Document {
	doc := ReadingToDocument(rec.TelemetryReading)
	doc["received_at"] = rec.ReceivedAt
	if len(rec.Metadata) > 0 {
		meta := make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		doc["metadata"] = meta
	}
	return doc
}

// DocumentToTelemetry converts a stored record back into the model
func DocumentToTelemetry(doc docstore.Document) (models.TelemetryRecord, error) {
	reading, err := DocumentToReading(doc)
	if err != nil {
		return models.TelemetryRecord{}, err
	}
	received, err := asTime(doc["received_at"])
	if err != nil {
		return models.TelemetryRecord{}, fmt.Errorf("invalid received_at: %w", err)
	}

	rec := models.TelemetryRecord{TelemetryReading: reading, ReceivedAt: received}
	if meta, ok := doc["metadata"].(map[string]any); ok && len(meta) > 0 {
		rec.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			rec.Metadata[k] = asString(v)
		}
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = rec.ReceivedAt
	}
	return rec, nil
}

// NotificationToDocument converts a notification into its stored form
func NotificationToDocument(n models.Notification) docstore.Document {
	doc := docstore.Document{
		"id":         n.ID,
		"level":      n.Level,
		"message":    n.Message,
		"created_at": n.CreatedAt,
	}
	if n.DeviceID != "" {
		doc["device_id"] = n.DeviceID
	}
	if n.Telemetry != nil {
		doc["telemetry"] = map[string]any(ReadingToDocument(*n.Telemetry))
	}
	return doc
}

// DocumentToNotification converts a stored notification back into the model
func DocumentToNotification(doc docstore.Document) (models.Notification, error) {
	created, err := asTime(doc["created_at"])
	if err != nil {
		return models.Notification{}, fmt.Errorf("invalid created_at: %w", err)
	}

	n := models.Notification{
		ID:        asString(doc["id"]),
		Level:     asString(doc["level"]),
		Message:   asString(doc["message"]),
		CreatedAt: created,
		DeviceID:  asString(doc["device_id"]),
	}
	if raw, ok := doc["telemetry"].(map[string]any); ok {
		reading, err := DocumentToReading(docstore.Document(raw))
		if err != nil {
			return models.Notification{}, err
		}
		n.Telemetry = &reading
	}
	return n, nil
}

// DeviceToDocument converts a device configuration into its stored form.
// is_online is derived and therefore never written.
func DeviceToDocument(cfg models.DeviceConfig) docstore.Document {
	targets := make(map[string]any, len(cfg.Targets))
	for name, r := range cfg.Targets {
		targets[name] = map[string]any{"min": r.Min, "max": r.Max}
	}

	doc := docstore.Document{
		"hardware_id":  cfg.HardwareID,
		"display_name": cfg.DisplayName,
		"owner_id":     cfg.OwnerID,
		"light_schedule": map[string]any{
			"start": cfg.LightSchedule.Start,
			"end":   cfg.LightSchedule.End,
		},
		"targets":        targets,
		"active_profile": cfg.ActiveProfile,
		"camera": map[string]any{
			"enabled":    cfg.Camera.Enabled,
			"stream_url": cfg.Camera.StreamURL,
		},
		"updated_at": cfg.UpdatedAt,
	}
	if cfg.LastSeen != nil {
		doc["last_seen"] = *cfg.LastSeen
	}
	return doc
}

// DocumentToDevice converts a stored device back into the model
func DocumentToDevice(doc docstore.Document) (models.DeviceConfig, error) {
	cfg := models.DeviceConfig{
		HardwareID:    asString(doc["hardware_id"]),
		DisplayName:   asString(doc["display_name"]),
		OwnerID:       asString(doc["owner_id"]),
		ActiveProfile: asString(doc["active_profile"]),
		Targets:       make(map[string]models.TargetRange),
	}

	if sched, ok := doc["light_schedule"].(map[string]any); ok {
		cfg.LightSchedule.Start = asString(sched["start"])
		cfg.LightSchedule.End = asString(sched["end"])
	}
	if cam, ok := doc["camera"].(map[string]any); ok {
		cfg.Camera.Enabled, _ = cam["enabled"].(bool)
		cfg.Camera.StreamURL = asString(cam["stream_url"])
	}
	if targets, ok := doc["targets"].(map[string]any); ok {
		for name, raw := range targets {
			bounds, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			lo, err := asFloat(bounds["min"])
			if err != nil {
				return cfg, fmt.Errorf("invalid target %s.min: %w", name, err)
			}
			hi, err := asFloat(bounds["max"])
			if err != nil {
				return cfg, fmt.Errorf("invalid target %s.max: %w", name, err)
			}
			cfg.Targets[name] = models.TargetRange{Min: lo, Max: hi}
		}
	}

	if raw, ok := doc["last_seen"]; ok && raw != nil {
		seen, err := asTime(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid last_seen: %w", err)
		}
		if !seen.IsZero() {
			cfg.LastSeen = &seen
		}
	}
	updated, err := asTime(doc["updated_at"])
	if err != nil {
		return cfg, fmt.Errorf("invalid updated_at: %w", err)
	}
	cfg.UpdatedAt = updated
	return cfg, nil
}

func asString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	default:
		return fmt.Sprint(tv)
	}
}

func asFloat(v any) (float64, error) {
	switch tv := v.(type) {
	case float64:
		return tv, nil
	case float32:
		return float64(tv), nil
	case int:
		return float64(tv), nil
	case int32:
		return float64(tv), nil
	case int64:
		return float64(tv), nil
	case json.Number:
		return tv.Float64()
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

// asTime accepts native times and RFC3339 strings; a missing value is the zero time
func asTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return tv.UTC(), nil
	case *time.Time:
		if tv == nil {
			return time.Time{}, nil
		}
		return tv.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected time type %T", v)
	}
}
