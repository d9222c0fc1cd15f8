package mq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/mq"
	"github.com/plantbox/plantbox-api/internal/validator"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestDecodeTelemetry_Valid(t *testing.T) {
	v := validator.NewValidator()
	body := []byte(`{"device_id":"PlantBox-492","reading":{"temperature_c":25,"water_level_pct":60,"flow_rate_lpm":1.1,"captured_at":"2025-01-01T08:00:00Z"}}`)

	deviceID, reading, err := mq.DecodeTelemetry(v, body)
	if err != nil {
		t.Fatalf("DecodeTelemetry failed: %v", err)
	}
	if deviceID != "PlantBox-492" || reading.DeviceID != "PlantBox-492" {
		t.Errorf("Expected device PlantBox-492, got %q / %q", deviceID, reading.DeviceID)
	}
	if reading.TemperatureC == nil || *reading.TemperatureC != 25 {
		t.Errorf("Expected temperature 25, got %v", reading.TemperatureC)
	}
	if reading.CapturedAt.IsZero() {
		t.Error("Expected captured_at to be parsed")
	}
}

func TestDecodeTelemetry_DeviceFromReading(t *testing.T) {
	v := validator.NewValidator()
	body := []byte(`{"reading":{"device_id":"PlantBox-7","temperature_c":20,"water_level_pct":60,"flow_rate_lpm":1}}`)

	deviceID, _, err := mq.DecodeTelemetry(v, body)
	if err != nil {
		t.Fatalf("DecodeTelemetry failed: %v", err)
	}
	if deviceID != "PlantBox-7" {
		t.Errorf("Expected PlantBox-7, got %q", deviceID)
	}
}

func TestDecodeTelemetry_Rejects(t *testing.T) {
	v := validator.NewValidator()

	cases := map[string]string{
		"malformed":      `{"reading":`,
		"missing fields": `{"reading":{"temperature_c":20}}`,
		"out of range":   `{"reading":{"temperature_c":20,"water_level_pct":140,"flow_rate_lpm":1}}`,
		"bad timestamp":  `{"reading":{"temperature_c":20,"water_level_pct":60,"flow_rate_lpm":1,"captured_at":"soon"}}`,
	}
	for name, body := range cases {
		if _, _, err := mq.DecodeTelemetry(v, []byte(body)); !errors.Is(err, validator.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestIngestHandler(t *testing.T) {
	v := validator.NewValidator()

	var got []string
	handler := mq.NewIngestHandler(v, func(_ context.Context, _ *zap.Logger, deviceID string, _ models.TelemetryReading) {
		got = append(got, deviceID)
	})

	logger := zaptest.NewLogger(t)
	if err := handler(context.Background(), logger, []byte(`{"device_id":"A","reading":{"temperature_c":20,"water_level_pct":60,"flow_rate_lpm":1}}`)); err != nil {
		t.Fatalf("Expected valid message to be accepted, got %v", err)
	}
	if err := handler(context.Background(), logger, []byte(`not json`)); err == nil {
		t.Error("Expected invalid message to be rejected")
	}

	if len(got) != 1 || got[0] != "A" {
		t.Errorf("Expected one ingest for A, got %v", got)
	}
}

func TestAlertRoutingKey(t *testing.T) {
	if got := mq.AlertRoutingKey(models.LevelCritical); got != "plantbox.alert.critical" {
		t.Errorf("Expected plantbox.alert.critical, got %s", got)
	}
}
