package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantbox/plantbox-api/internal/metrics"
	"go.uber.org/zap"
)

// RouterConfig holds the router collaborators. Limiter and Live may be nil.
type RouterConfig struct {
	Handler *Handler
	Metrics *metrics.Metrics
	Limiter *RateLimiter
	Live    http.HandlerFunc
	Logger  *zap.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(cfg.Logger),
		Recovery(cfg.Logger),
		AccessLog(cfg.Logger),
		Metrics(cfg.Metrics),
	)

	h := cfg.Handler
	ingest := []gin.HandlerFunc{}
	if cfg.Limiter != nil {
		ingest = append(ingest, cfg.Limiter.Middleware())
	}
	withLimit := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, ingest...), handler)
	}

	r.GET("/health", h.Health)
	r.GET("/config", h.GetConfig)
	r.POST("/config", h.UpdateConfig)
	r.GET("/profiles", h.ListProfiles)

	r.POST("/telemetry", withLimit(h.PostTelemetry)...)
	r.POST("/setTelemetry", withLimit(h.PostTelemetry)...)
	r.POST("/sendTelemetry", withLimit(h.SendTelemetry)...)
	r.GET("/telemetry", h.ListTelemetry)
	r.GET("/telemetry/latest", h.LatestTelemetry)
	r.GET("/notifications", h.ListNotifications)

	dev := r.Group("/devices/:hardware_id")
	dev.GET("/config", h.GetDeviceConfig)
	dev.POST("/config", h.ReplaceDeviceConfig)
	dev.PATCH("/config", h.PatchDeviceConfig)
	dev.GET("/fetchRefVals", h.GetDeviceConfig)
	dev.GET("/telemetry", h.ListDeviceTelemetry)
	dev.POST("/telemetry", withLimit(h.PostDeviceTelemetry)...)

	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	if cfg.Live != nil {
		r.GET("/ws", gin.WrapF(cfg.Live))
	}

	return r
}
