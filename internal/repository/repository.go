package repository

import (
	"context"
	"fmt"

	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/models"
)

// Repository handles durable storage of telemetry, notifications and devices
type Repository struct {
	store docstore.Store
}

// NewRepository creates a new repository
func NewRepository(store docstore.Store) *Repository {
	if store == nil {
		store = docstore.Noop{}
	}
	return &Repository{store: store}
}

// Enabled reports whether a backing store is configured
func (r *Repository) Enabled() bool {
	_, noop := r.store.(docstore.Noop)
	return !noop
}

// InsertTelemetry persists a telemetry record
func (r *Repository) InsertTelemetry(ctx context.Context, rec models.TelemetryRecord) error {
	if _, err := r.store.Insert(ctx, docstore.CollectionTelemetry, TelemetryToDocument(rec)); err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

// RecentTelemetry returns up to limit of the newest records for a device, oldest first
func (r *Repository) RecentTelemetry(ctx context.Context, deviceID string, limit int) ([]models.TelemetryRecord, error) {
	docs, err := r.store.Find(ctx, docstore.CollectionTelemetry,
		docstore.Document{"device_id": deviceID},
		docstore.SortDesc("received_at"),
		docstore.Limit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}

	records := make([]models.TelemetryRecord, len(docs))
	for i, doc := range docs {
		rec, err := DocumentToTelemetry(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode telemetry: %w", err)
		}
		records[len(docs)-1-i] = rec
	}
	return records, nil
}

// InsertNotification persists a notification
func (r *Repository) InsertNotification(ctx context.Context, n models.Notification) error {
	if _, err := r.store.Insert(ctx, docstore.CollectionNotifications, NotificationToDocument(n)); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// FindDevice loads a device configuration by hardware id.
// A missing device yields an error wrapping docstore.ErrNotFound.
func (r *Repository) FindDevice(ctx context.Context, hardwareID string) (models.DeviceConfig, error) {
	doc, err := r.store.FindOne(ctx, docstore.CollectionDevices, docstore.Document{"hardware_id": hardwareID})
	if err != nil {
		return models.DeviceConfig{}, fmt.Errorf("failed to find device %s: %w", hardwareID, err)
	}

	cfg, err := DocumentToDevice(doc)
	if err != nil {
		return models.DeviceConfig{}, fmt.Errorf("failed to decode device %s: %w", hardwareID, err)
	}
	return cfg, nil
}

// UpsertDevice writes a device configuration keyed by hardware id
func (r *Repository) UpsertDevice(ctx context.Context, cfg models.DeviceConfig) error {
	query := docstore.Document{"hardware_id": cfg.HardwareID}
	if _, err := r.store.UpdateOne(ctx, docstore.CollectionDevices, query, DeviceToDocument(cfg), true); err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", cfg.HardwareID, err)
	}
	return nil
}
