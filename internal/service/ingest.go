package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/plantbox/plantbox-api/internal/alerts"
	"github.com/plantbox/plantbox-api/internal/devices"
	"github.com/plantbox/plantbox-api/internal/history"
	"github.com/plantbox/plantbox-api/internal/logging"
	"github.com/plantbox/plantbox-api/internal/metrics"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/notify"
	"go.uber.org/zap"
)

// Telemetry sources recorded in record metadata
const (
	SourceAPI      = "api"
	SourceFirmware = "firmware"
	SourceQueue    = "queue"
)

// StatusOK is the only ingest status; downstream failures never change it
const StatusOK = "ok"

// Repository is the durable storage used by the pipeline
type Repository interface {
	Enabled() bool
	InsertTelemetry(ctx context.Context, rec models.TelemetryRecord) error
	RecentTelemetry(ctx context.Context, deviceID string, limit int) ([]models.TelemetryRecord, error)
	InsertNotification(ctx context.Context, n models.Notification) error
}

// Broadcaster receives every stored record and raised notification
type Broadcaster interface {
	PublishTelemetry(rec models.TelemetryRecord)
	PublishNotification(n models.Notification)
}

// Result is returned to the caller of Ingest
type Result struct {
	Status        string               `json:"status"`
	Alerts        []string             `json:"alerts"`
	ProfileAlerts []string             `json:"profile_alerts"`
	Notification  *models.Notification `json:"notification,omitempty"`
}

// Deps holds the pipeline collaborators. Repository, Notifier and Live may be nil.
type Deps struct {
	Telemetry     *history.Buffer[models.TelemetryRecord]
	Notifications *history.Buffer[models.Notification]
	Repository    Repository
	Devices       *devices.Store
	State         *devices.StateHolder
	Notifier      notify.Notifier
	Live          Broadcaster
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// IngestService runs the telemetry pipeline and serves its history
type IngestService struct {
	telemetry     *history.Buffer[models.TelemetryRecord]
	notifications *history.Buffer[models.Notification]
	repo          Repository
	devices       *devices.Store
	state         *devices.StateHolder
	notifier      notify.Notifier
	live          Broadcaster
	metrics       *metrics.Metrics
	logger        *zap.Logger
	storeTimeout  time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewIngestService creates the pipeline
func NewIngestService(d Deps) *IngestService {
	s := &IngestService{
		telemetry:     d.Telemetry,
		notifications: d.Notifications,
		repo:          d.Repository,
		devices:       d.Devices,
		state:         d.State,
		notifier:      d.Notifier,
		live:          d.Live,
		metrics:       d.Metrics,
		logger:        d.Logger,
		storeTimeout:  d.StoreTimeout,
		notifyTimeout: d.NotifyTimeout,
		now:           d.Now,
	}
	if s.telemetry == nil {
		s.telemetry = history.New[models.TelemetryRecord](history.TelemetryCapacity)
	}
	if s.notifications == nil {
		s.notifications = history.New[models.Notification](history.NotificationCapacity)
	}
	if s.state == nil {
		s.state = devices.NewStateHolder()
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.devices == nil {
		s.devices = devices.NewStore(nil, s.logger)
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = 3 * time.Second
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type ingestOptions struct {
	source string
	logger *zap.Logger
}

// IngestOption adjusts a single Ingest call
type IngestOption func(*ingestOptions)

// WithSource records where the reading came from
func WithSource(source string) IngestOption {
	return func(o *ingestOptions) { o.source = source }
}

// WithLogger logs the call with a request-scoped logger
func WithLogger(logger *zap.Logger) IngestOption {
	return func(o *ingestOptions) { o.logger = logger }
}

func (s *IngestService) storeEnabled() bool {
	return s.repo != nil && s.repo.Enabled()
}

// Ingest accepts a validated reading. An empty deviceID evaluates against the
// single-device configuration. Persistence, device bookkeeping and delivery
// are attempted once each; their failures are logged and never returned.
func (s *IngestService) Ingest(ctx context.Context, deviceID string, reading models.TelemetryReading, opts ...IngestOption) Result {
	o := ingestOptions{source: SourceAPI, logger: s.logger}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.WithDevice(o.logger, deviceID)
	// downstream calls outlive a disconnecting client
	ctx = context.WithoutCancel(ctx)

	receivedAt := s.now().UTC()
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = receivedAt
	}
	if deviceID != "" {
		reading.DeviceID = deviceID
	}

	rec := models.TelemetryRecord{
		TelemetryReading: reading,
		ReceivedAt:       receivedAt,
		Metadata: map[string]string{
			models.MetadataSource: o.source,
		},
	}
	// device profiles need a store read and are resolved after buffering
	var state models.ConfigState
	if deviceID == "" {
		state = s.state.Get()
		if state.ActiveProfile != "" {
			rec.Metadata[models.MetadataProfileActive] = state.ActiveProfile
		}
	}

	s.telemetry.Append(rec)
	s.metrics.TelemetryIngested()
	s.persistTelemetry(ctx, logger, rec)
	if s.live != nil {
		s.live.PublishTelemetry(rec)
	}

	var (
		targets     alerts.Targets
		profileName string
	)
	if deviceID == "" {
		targets = alerts.TargetsFromState(state)
		profileName = state.ActiveProfile
	} else {
		cfg := s.deviceConfig(ctx, deviceID)
		targets = alerts.TargetsFromDevice(cfg)
		profileName = cfg.ActiveProfile
		s.touch(ctx, logger, deviceID, receivedAt)
	}

	result := Result{
		Status:        StatusOK,
		Alerts:        nonNil(alerts.Evaluate(reading, targets)),
		ProfileAlerts: nonNil(alerts.EvaluateProfile(reading, profileName)),
	}

	combined := append(append([]string{}, result.Alerts...), result.ProfileAlerts...)
	if len(combined) > 0 {
		n := s.raise(ctx, logger, deviceID, reading, combined)
		result.Notification = &n
	}

	logger.Debug("Telemetry ingested",
		zap.String("source", o.source),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("profile_alerts", len(result.ProfileAlerts)),
	)
	return result
}

func (s *IngestService) deviceConfig(ctx context.Context, deviceID string) models.DeviceConfig {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.devices.GetOrCreate(ctx, deviceID)
}

func (s *IngestService) persistTelemetry(ctx context.Context, logger *zap.Logger, rec models.TelemetryRecord) {
	if !s.storeEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.InsertTelemetry(ctx, rec); err != nil {
		s.metrics.StoreFailure("insert_telemetry")
		logger.Warn("Failed to persist telemetry", zap.Error(err))
	}
}

func (s *IngestService) touch(ctx context.Context, logger *zap.Logger, deviceID string, seenAt time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.devices.Touch(ctx, deviceID, seenAt); err != nil {
		s.metrics.StoreFailure("touch_device")
		logger.Warn("Failed to update device last_seen", zap.Error(err))
	}
}

func (s *IngestService) raise(ctx context.Context, logger *zap.Logger, deviceID string, reading models.TelemetryReading, messages []string) models.Notification {
	level := models.LevelWarning
	if reading.BlackoutMode {
		level = models.LevelCritical
	}

	snapshot := reading
	n := models.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   strings.Join(messages, " "),
		CreatedAt: s.now().UTC(),
		DeviceID:  deviceID,
		Telemetry: &snapshot,
	}

	s.notifications.Append(n)
	s.metrics.Notification(level)
	logger.Info("Notification raised",
		zap.String("notification_id", n.ID),
		zap.String("level", level),
		zap.String("message", n.Message),
	)

	if s.storeEnabled() {
		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		if err := s.repo.InsertNotification(storeCtx, n); err != nil {
			s.metrics.StoreFailure("insert_notification")
			logger.Warn("Failed to persist notification", zap.Error(err))
		}
		cancel()
	}

	if s.live != nil {
		s.live.PublishNotification(n)
	}

	if s.notifier.Enabled() {
		sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		err := s.notifier.Send(sendCtx, notify.Message{
			Subject:  notify.Subject(level),
			Body:     n.Message,
			Level:    level,
			ID:       n.ID,
			DeviceID: deviceID,
		})
		cancel()
		if err != nil {
			s.metrics.NotifyFailure()
			logger.Warn("Failed to deliver notification", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}

	return n
}

// History returns up to limit recent records, oldest first. With a deviceID
// the store is queried first and the buffer serves as fallback.
func (s *IngestService) History(ctx context.Context, deviceID string, limit int) []models.TelemetryRecord {
	if deviceID == "" {
		return s.telemetry.Recent(limit)
	}

	if s.storeEnabled() {
		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		records, err := s.repo.RecentTelemetry(storeCtx, deviceID, limit)
		cancel()
		if err == nil {
			return records
		}
		s.metrics.StoreFailure("recent_telemetry")
		logging.WithDevice(s.logger, deviceID).Warn("Failed to query telemetry history, using buffer", zap.Error(err))
	}

	return s.telemetry.Filter(func(rec models.TelemetryRecord) bool {
		return rec.DeviceID == deviceID
	}, limit)
}

// Latest returns the newest buffered record
func (s *IngestService) Latest() (models.TelemetryRecord, bool) {
	return s.telemetry.Latest()
}

// Notifications returns up to limit recent notifications, oldest first
func (s *IngestService) Notifications(limit int) []models.Notification {
	return s.notifications.Recent(limit)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
