package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plantbox/plantbox-api/internal/api"
	"github.com/plantbox/plantbox-api/internal/config"
	"github.com/plantbox/plantbox-api/internal/db"
	"github.com/plantbox/plantbox-api/internal/devices"
	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/history"
	"github.com/plantbox/plantbox-api/internal/live"
	"github.com/plantbox/plantbox-api/internal/metrics"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/mq"
	"github.com/plantbox/plantbox-api/internal/notify"
	"github.com/plantbox/plantbox-api/internal/repository"
	"github.com/plantbox/plantbox-api/internal/service"
	"github.com/plantbox/plantbox-api/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterCleanupInterval = 5 * time.Minute

// ProvideMetrics creates the process metrics registry
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideValidator creates the boundary validator
func ProvideValidator() *validator.Validator {
	return validator.NewValidator()
}

// ProvideStore selects the document store from STORE_URI. A missing or
// unsupported URI disables persistence instead of failing startup.
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (docstore.Store, error) {
	kind, err := docstore.KindFromURI(cfg.Store.URI)
	if err != nil {
		logger.Warn("Unsupported store URI, persistence disabled", zap.Error(err))
		return docstore.Noop{}, nil
	}

	var store docstore.Store
	switch kind {
	case docstore.KindNone:
		logger.Info("No store configured, running memory-only")
		return docstore.Noop{}, nil
	case docstore.KindMemory:
		store = docstore.NewMemory()
	case docstore.KindPostgres:
		pool, err := db.NewPool(lc, logger, cfg.Store.URI)
		if err != nil {
			return nil, err
		}
		return docstore.NewPostgres(pool), nil
	case docstore.KindMongo:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
		defer cancel()
		mongo, err := docstore.NewMongo(ctx, cfg.Store.URI, cfg.Store.Database, cfg.Store.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create mongo store: %w", err)
		}
		store = mongo
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				logger.Warn("Store ping failed, continuing with best-effort persistence",
					zap.String("kind", string(kind)), zap.Error(err))
				return nil
			}
			logger.Info("Store connected", zap.String("kind", string(kind)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return store.Close(ctx)
		},
	})
	return store, nil
}

// ProvideRepository wraps the store with typed accessors
func ProvideRepository(store docstore.Store) *repository.Repository {
	return repository.NewRepository(store)
}

// ProvideTelemetryBuffer creates the recent-telemetry buffer
func ProvideTelemetryBuffer() *history.Buffer[models.TelemetryRecord] {
	return history.New[models.TelemetryRecord](history.TelemetryCapacity)
}

// ProvideNotificationBuffer creates the recent-notification buffer
func ProvideNotificationBuffer() *history.Buffer[models.Notification] {
	return history.New[models.Notification](history.NotificationCapacity)
}

// ProvideDeviceStore creates the per-device config store
func ProvideDeviceStore(repo *repository.Repository, logger *zap.Logger) *devices.Store {
	return devices.NewStore(repo, logger)
}

// ProvideStateHolder creates the single-device config holder
func ProvideStateHolder() *devices.StateHolder {
	return devices.NewStateHolder()
}

// ProvideMQConnection dials RabbitMQ when RABBITMQ_URL is set. An unreachable
// broker disables queue ingest and broker alerts.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) *mq.Connection {
	if !cfg.RabbitMQ.Enabled() {
		return nil
	}
	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, queue ingest and broker alerts disabled", zap.Error(err))
		return nil
	}
	return conn
}

// ProvidePublisher creates the alert publisher when a broker is connected
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	if conn == nil {
		return nil, nil
	}
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.AlertExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(publisher.Close))
	return publisher, nil
}

// ProvideNotifier combines every configured delivery channel
func ProvideNotifier(cfg *config.Config, publisher *mq.Publisher, logger *zap.Logger) (notify.Notifier, error) {
	email, err := notify.NewEmail(cfg.SMTP)
	if err != nil {
		return nil, err
	}

	// a nil *mq.Publisher must not become a non-nil interface
	broker := notify.NewBroker(nil)
	if publisher != nil {
		broker = notify.NewBroker(publisher)
	}

	n := notify.NewMulti(email, broker)
	logger.Info("Notifier configured",
		zap.Bool("email", email.Enabled()),
		zap.Bool("broker", broker.Enabled()))
	return n, nil
}

// ProvideHub creates the live feed hub and ties it to the app lifecycle
func ProvideHub(lc fx.Lifecycle, logger *zap.Logger) *live.Hub {
	hub := live.NewHub(logger)
	hub.RegisterLifecycle(lc)
	return hub
}

// ProvideIngestService assembles the pipeline
func ProvideIngestService(
	cfg *config.Config,
	telemetry *history.Buffer[models.TelemetryRecord],
	notifications *history.Buffer[models.Notification],
	repo *repository.Repository,
	deviceStore *devices.Store,
	state *devices.StateHolder,
	notifier notify.Notifier,
	hub *live.Hub,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.IngestService {
	return service.NewIngestService(service.Deps{
		Telemetry:     telemetry,
		Notifications: notifications,
		Repository:    repo,
		Devices:       deviceStore,
		State:         state,
		Notifier:      notifier,
		Live:          hub,
		Metrics:       m,
		Logger:        logger,
		StoreTimeout:  cfg.Store.Timeout,
		NotifyTimeout: cfg.SMTP.Timeout,
	})
}

// ProvideRateLimiter creates the ingest rate limiter when INGEST_RATE_PER_SEC
// is set. Without it ingest is never throttled.
func ProvideRateLimiter(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *api.RateLimiter {
	if !cfg.Ingest.Enabled() {
		return nil
	}
	logger.Info("Ingest throttling enabled",
		zap.Float64("rate_per_sec", cfg.Ingest.RatePerSecond),
		zap.Int("burst", cfg.Ingest.Burst))

	limiter := api.NewRateLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			limiter.Start(limiterCleanupInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			limiter.Stop()
			return nil
		},
	})
	return limiter
}

// ProvideHandler creates the HTTP handlers
func ProvideHandler(
	svc *service.IngestService,
	state *devices.StateHolder,
	deviceStore *devices.Store,
	v *validator.Validator,
	logger *zap.Logger,
) *api.Handler {
	return api.NewHandler(svc, state, deviceStore, v, logger)
}

// ProvideRouter builds the gin engine
func ProvideRouter(h *api.Handler, m *metrics.Metrics, limiter *api.RateLimiter, hub *live.Hub, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	return api.NewRouter(api.RouterConfig{
		Handler: h,
		Metrics: m,
		Limiter: limiter,
		Live:    hub.ServeWS,
		Logger:  logger,
	})
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServicePort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	v *validator.Validator,
	svc *service.IngestService,
	logger *zap.Logger,
) error {
	if conn == nil {
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		Queue:         cfg.RabbitMQ.IngestQueue,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler: mq.NewIngestHandler(v, func(ctx context.Context, msgLogger *zap.Logger, deviceID string, reading models.TelemetryReading) {
			svc.Ingest(ctx, deviceID, reading,
				service.WithSource(service.SourceQueue),
				service.WithLogger(msgLogger))
		}),
	})
	if err != nil {
		logger.Warn("Failed to set up ingest consumer, queue ingest disabled", zap.Error(err))
		return nil
	}
	consumer.RegisterLifecycle(lc)
	return nil
}
