package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plantbox/plantbox-api/internal/alerts"
	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/tools/timeparser"
	"go.uber.org/zap"
)

// OfflineAfter is how long a device may stay silent before it is reported offline
const OfflineAfter = 2 * time.Minute

// DefaultOwner marks devices nobody has claimed yet
const DefaultOwner = "unassigned"

// Repository is the persistence the store needs
type Repository interface {
	Enabled() bool
	FindDevice(ctx context.Context, hardwareID string) (models.DeviceConfig, error)
	UpsertDevice(ctx context.Context, cfg models.DeviceConfig) error
}

// Store serves per-device configuration with atomic read-modify-write per hardware id
type Store struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
	locks  sync.Map
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for online status and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a device config store. repo may be nil when no store is configured.
func NewStore(repo Repository, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDeviceConfig synthesizes the configuration of a device never seen before
func DefaultDeviceConfig(hardwareID string) models.DeviceConfig {
	return models.DeviceConfig{
		HardwareID:  hardwareID,
		DisplayName: hardwareID,
		OwnerID:     DefaultOwner,
		LightSchedule: models.LightSchedule{
			Start: "06:00:00",
			End:   "20:00:00",
		},
		Targets: map[string]models.TargetRange{
			models.TargetAirTemp:    {Min: 18, Max: 26},
			models.TargetHumidity:   {Min: 40, Max: 70},
			models.TargetWaterLevel: {Min: 50, Max: 100},
			models.TargetFlowRate:   {Min: 0.8, Max: 1.2},
		},
		ActiveProfile: alerts.DefaultProfile,
	}
}

// IsOnline reports whether lastSeen is recent enough relative to now
func IsOnline(lastSeen *time.Time, now time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return timeparser.IsWithin(*lastSeen, now, OfflineAfter)
}

func (s *Store) enabled() bool {
	return s.repo != nil && s.repo.Enabled()
}

// GetOrCreate returns the stored configuration, or a default one when the
// device is unknown or the store is unavailable. Defaults are not persisted.
func (s *Store) GetOrCreate(ctx context.Context, hardwareID string) models.DeviceConfig {
	cfg, err := s.load(ctx, hardwareID)
	if err != nil {
		s.logger.Warn("Failed to load device config, using defaults",
			zap.String("hardware_id", hardwareID),
			zap.Error(err))
		cfg = DefaultDeviceConfig(hardwareID)
	}
	cfg.IsOnline = IsOnline(cfg.LastSeen, s.now())
	return cfg
}

// load returns defaults on a miss and an error only for store failures
func (s *Store) load(ctx context.Context, hardwareID string) (models.DeviceConfig, error) {
	if !s.enabled() {
		return DefaultDeviceConfig(hardwareID), nil
	}
	cfg, err := s.repo.FindDevice(ctx, hardwareID)
	if errors.Is(err, docstore.ErrNotFound) {
		return DefaultDeviceConfig(hardwareID), nil
	}
	if err != nil {
		return models.DeviceConfig{}, err
	}
	if cfg.HardwareID == "" {
		cfg.HardwareID = hardwareID
	}
	return cfg, nil
}

// Save upserts the configuration by hardware id. Without a store it does nothing.
func (s *Store) Save(ctx context.Context, cfg models.DeviceConfig) error {
	return s.save(ctx, &cfg)
}

func (s *Store) save(ctx context.Context, cfg *models.DeviceConfig) error {
	if !s.enabled() {
		return nil
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.repo.UpsertDevice(ctx, *cfg); err != nil {
		return fmt.Errorf("failed to save device config: %w", err)
	}
	return nil
}

func (s *Store) lock(hardwareID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(hardwareID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Update applies fn to the current configuration and saves the result.
// Concurrent updates to one device are serialized; a read failure aborts
// instead of overwriting the stored document with defaults.
func (s *Store) Update(ctx context.Context, hardwareID string, fn func(*models.DeviceConfig) error) (models.DeviceConfig, error) {
	mu := s.lock(hardwareID)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := s.load(ctx, hardwareID)
	if err != nil {
		return models.DeviceConfig{}, fmt.Errorf("failed to read device config: %w", err)
	}
	if err := fn(&cfg); err != nil {
		return models.DeviceConfig{}, err
	}
	cfg.HardwareID = hardwareID

	if err := s.save(ctx, &cfg); err != nil {
		return models.DeviceConfig{}, err
	}
	cfg.IsOnline = IsOnline(cfg.LastSeen, s.now())
	return cfg, nil
}

// Touch records that the device reported at seenAt
func (s *Store) Touch(ctx context.Context, hardwareID string, seenAt time.Time) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.Update(ctx, hardwareID, func(cfg *models.DeviceConfig) error {
		seen := seenAt.UTC()
		cfg.LastSeen = &seen
		return nil
	})
	return err
}
