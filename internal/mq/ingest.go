package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/validator"
	"go.uber.org/zap"
)

// TelemetryMessage is the body of an ingest queue message
type TelemetryMessage struct {
	DeviceID string              `json:"device_id"`
	Reading  models.ReadingInput `json:"reading"`
}

// IngestFunc hands a validated reading to the pipeline
type IngestFunc func(ctx context.Context, logger *zap.Logger, deviceID string, reading models.TelemetryReading)

// DecodeTelemetry parses and validates a queue message. The top-level
// device_id wins over the one inside the reading.
func DecodeTelemetry(v *validator.Validator, body []byte) (string, models.TelemetryReading, error) {
	var msg TelemetryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", models.TelemetryReading{}, fmt.Errorf("%w: malformed message: %v", validator.ErrInvalid, err)
	}
	if err := v.Struct(msg.Reading); err != nil {
		return "", models.TelemetryReading{}, err
	}

	reading, err := msg.Reading.ToReading()
	if err != nil {
		return "", models.TelemetryReading{}, fmt.Errorf("%w: %v", validator.ErrInvalid, err)
	}

	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = reading.DeviceID
	}
	reading.DeviceID = deviceID
	return deviceID, reading, nil
}

// NewIngestHandler adapts the pipeline into a consumer MessageHandler
func NewIngestHandler(v *validator.Validator, ingest IngestFunc) MessageHandler {
	return func(ctx context.Context, logger *zap.Logger, body []byte) error {
		deviceID, reading, err := DecodeTelemetry(v, body)
		if err != nil {
			return err
		}
		logger.Debug("Ingesting queued telemetry", zap.String("hardware_id", deviceID))
		ingest(ctx, logger, deviceID, reading)
		return nil
	}
}
