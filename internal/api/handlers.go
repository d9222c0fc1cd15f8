package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantbox/plantbox-api/internal/alerts"
	"github.com/plantbox/plantbox-api/internal/devices"
	"github.com/plantbox/plantbox-api/internal/history"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/service"
	"github.com/plantbox/plantbox-api/internal/validator"
	"github.com/plantbox/plantbox-api/tools/timeparser"
	"go.uber.org/zap"
)

// DefaultLimit is used when a list endpoint gets no limit
const DefaultLimit = 50

// NoTelemetryDetail is the 404 detail before the first reading arrives
const NoTelemetryDetail = "No telemetry received yet."

// Handler serves the HTTP endpoints
type Handler struct {
	ingest    *service.IngestService
	state     *devices.StateHolder
	devices   *devices.Store
	validator *validator.Validator
	logger    *zap.Logger
}

// NewHandler creates the endpoint handlers
func NewHandler(ingest *service.IngestService, state *devices.StateHolder, store *devices.Store, v *validator.Validator, logger *zap.Logger) *Handler {
	return &Handler{
		ingest:    ingest,
		state:     state,
		devices:   store,
		validator: v,
		logger:    logger,
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request",
		"details": err.Error(),
	})
}

// limitParam reads ?limit=, defaulting to DefaultLimit and clamping to [1, capacity]
func limitParam(c *gin.Context, capacity int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return min(DefaultLimit, capacity), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", validator.ErrInvalid)
	}
	return max(1, min(n, capacity)), nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Get())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg models.ConfigState
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.validator.ValidateConfigState(cfg); err != nil {
		badRequest(c, err)
		return
	}
	if cfg.ActiveProfile == "" {
		cfg.ActiveProfile = alerts.DefaultProfile
	}
	if err := normalizeSchedules(&cfg.LightSchedule, &cfg.NutrientSchedule.Start, &cfg.NutrientSchedule.End); err != nil {
		badRequest(c, err)
		return
	}

	h.state.Replace(cfg)
	requestLogger(c, h.logger).Info("Configuration replaced", zap.String("active_profile", cfg.ActiveProfile))
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, alerts.Profiles())
}

// PostTelemetry ingests a single-device reading
func (h *Handler) PostTelemetry(c *gin.Context) {
	reading, ok := h.bindReading(c)
	if !ok {
		return
	}
	res := h.ingest.Ingest(c.Request.Context(), "", reading,
		service.WithLogger(requestLogger(c, h.logger)))
	c.JSON(http.StatusOK, res)
}

// PostDeviceTelemetry ingests a reading for the device in the path
func (h *Handler) PostDeviceTelemetry(c *gin.Context) {
	reading, ok := h.bindReading(c)
	if !ok {
		return
	}
	res := h.ingest.Ingest(c.Request.Context(), c.Param("hardware_id"), reading,
		service.WithLogger(requestLogger(c, h.logger)))
	c.JSON(http.StatusOK, res)
}

// SendTelemetry accepts the firmware payload shape
func (h *Handler) SendTelemetry(c *gin.Context) {
	var payload models.FirmwarePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		badRequest(c, err)
		return
	}
	res := h.ingest.Ingest(c.Request.Context(), payload.DeviceID, payload.ToReading(),
		service.WithSource(service.SourceFirmware),
		service.WithLogger(requestLogger(c, h.logger)))
	c.JSON(http.StatusOK, res)
}

func (h *Handler) bindReading(c *gin.Context) (models.TelemetryReading, bool) {
	var in models.ReadingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return models.TelemetryReading{}, false
	}
	if err := h.validator.Struct(in); err != nil {
		badRequest(c, err)
		return models.TelemetryReading{}, false
	}
	reading, err := in.ToReading()
	if err != nil {
		badRequest(c, fmt.Errorf("%w: %v", validator.ErrInvalid, err))
		return models.TelemetryReading{}, false
	}
	return reading, true
}

func (h *Handler) ListTelemetry(c *gin.Context) {
	limit, err := limitParam(c, history.TelemetryCapacity)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ingest.History(c.Request.Context(), "", limit))
}

func (h *Handler) LatestTelemetry(c *gin.Context) {
	rec, ok := h.ingest.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": NoTelemetryDetail})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, err := limitParam(c, history.NotificationCapacity)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ingest.Notifications(limit))
}

func (h *Handler) ListDeviceTelemetry(c *gin.Context) {
	limit, err := limitParam(c, history.TelemetryCapacity)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ingest.History(c.Request.Context(), c.Param("hardware_id"), limit))
}

// GetDeviceConfig also serves the firmware's fetchRefVals call
func (h *Handler) GetDeviceConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.devices.GetOrCreate(c.Request.Context(), c.Param("hardware_id")))
}

// deviceConfigRequest replaces every client-owned field of a device config.
// Empty identity fields fall back to their defaults.
type deviceConfigRequest struct {
	DisplayName   string                        `json:"display_name"`
	OwnerID       string                        `json:"owner_id"`
	LightSchedule models.LightSchedule          `json:"light_schedule"`
	Targets       map[string]models.TargetRange `json:"targets"`
	ActiveProfile string                        `json:"active_profile"`
	Camera        models.Camera                 `json:"camera"`
}

// deviceConfigPatch is a partial update; absent fields keep their value
// and targets are merged by key
type deviceConfigPatch struct {
	DisplayName   *string                       `json:"display_name"`
	OwnerID       *string                       `json:"owner_id"`
	LightSchedule *models.LightSchedule         `json:"light_schedule"`
	Targets       map[string]models.TargetRange `json:"targets"`
	ActiveProfile *string                       `json:"active_profile"`
	Camera        *models.Camera                `json:"camera"`
}

// ReplaceDeviceConfig overwrites the device configuration. hardware_id,
// last_seen and updated_at stay server-owned.
func (h *Handler) ReplaceDeviceConfig(c *gin.Context) {
	var req deviceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hardwareID := c.Param("hardware_id")
	h.updateDevice(c, hardwareID, func(cfg *models.DeviceConfig) {
		cfg.DisplayName = req.DisplayName
		if cfg.DisplayName == "" {
			cfg.DisplayName = hardwareID
		}
		cfg.OwnerID = req.OwnerID
		if cfg.OwnerID == "" {
			cfg.OwnerID = devices.DefaultOwner
		}
		cfg.LightSchedule = req.LightSchedule
		cfg.ActiveProfile = req.ActiveProfile
		if cfg.ActiveProfile == "" {
			cfg.ActiveProfile = alerts.DefaultProfile
		}
		cfg.Camera = req.Camera
		cfg.Targets = make(map[string]models.TargetRange, len(req.Targets))
		for name, r := range req.Targets {
			cfg.Targets[name] = r
		}
	})
}

// PatchDeviceConfig changes only the fields present in the body
func (h *Handler) PatchDeviceConfig(c *gin.Context) {
	var req deviceConfigPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.updateDevice(c, c.Param("hardware_id"), func(cfg *models.DeviceConfig) {
		if req.DisplayName != nil {
			cfg.DisplayName = *req.DisplayName
		}
		if req.OwnerID != nil {
			cfg.OwnerID = *req.OwnerID
		}
		if req.LightSchedule != nil {
			cfg.LightSchedule = *req.LightSchedule
		}
		if req.ActiveProfile != nil {
			cfg.ActiveProfile = *req.ActiveProfile
		}
		if req.Camera != nil {
			cfg.Camera = *req.Camera
		}
		if cfg.Targets == nil {
			cfg.Targets = make(map[string]models.TargetRange, len(req.Targets))
		}
		for name, r := range req.Targets {
			cfg.Targets[name] = r
		}
	})
}

func (h *Handler) updateDevice(c *gin.Context, hardwareID string, apply func(*models.DeviceConfig)) {
	cfg, err := h.devices.Update(c.Request.Context(), hardwareID, func(cfg *models.DeviceConfig) error {
		apply(cfg)
		if err := h.validator.ValidateDeviceConfig(*cfg); err != nil {
			return err
		}
		return normalizeSchedules(&cfg.LightSchedule)
	})
	if errors.Is(err, validator.ErrInvalid) {
		badRequest(c, err)
		return
	}
	if err != nil {
		requestLogger(c, h.logger).Warn("Failed to update device config",
			zap.String("hardware_id", hardwareID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device config store unavailable"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// normalizeSchedules rewrites validated time-of-day strings as HH:MM:SS
func normalizeSchedules(light *models.LightSchedule, extra ...*string) error {
	fields := append([]*string{&light.Start, &light.End}, extra...)
	for _, f := range fields {
		out, err := timeparser.NormalizeTimeOfDay(*f)
		if err != nil {
			return fmt.Errorf("%w: %v", validator.ErrInvalid, err)
		}
		*f = out
	}
	return nil
}
