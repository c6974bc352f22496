package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/model"
)

// DigestController is the workflow surface exposed over HTTP
type DigestController interface {
	GetDigests(ctx context.Context) ([]model.Digest, error)
	GetDigest(ctx context.Context, id uint) (*model.Digest, error)
	ViewDigest(ctx context.Context, s digest.Settings, id uint) (*digest.RenderedDigest, error)
	PreviewDigest(ctx context.Context, s digest.Settings) (*digest.RenderedDigest, bool, error)
	HasNextDigestContent(ctx context.Context, s digest.Settings) (bool, error)
	PrepareDigest(ctx context.Context, s digest.Settings) (*digest.PrepareResult, error)
	NotifyValidators(ctx context.Context, s digest.Settings, id uint) (*model.Digest, error)
	SendTestDigest(ctx context.Context, s digest.Settings, id uint) error
	SendDigest(ctx context.Context, s digest.Settings, id uint) (*model.Digest, error)
}

// SchedulerControl is the scheduler surface exposed over HTTP
type SchedulerControl interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (*digest.PrepareResult, error)
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// SettingsSource returns the current digest settings
type SettingsSource interface {
	Settings() digest.Settings
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	controller DigestController
	scheduler  SchedulerControl
	settings   SettingsSource
	gatherer   prometheus.Gatherer
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, controller DigestController, scheduler SchedulerControl, settings SettingsSource, gatherer prometheus.Gatherer) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		db:         db,
		controller: controller,
		scheduler:  scheduler,
		settings:   settings,
		gatherer:   gatherer,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/digests", h.GetDigests)
		api.POST("/digests", h.PrepareDigest)
		api.GET("/digests/preview", h.PreviewDigest)
		api.GET("/digests/next", h.NextDigest)
		api.GET("/digests/:id", h.GetDigest)
		api.GET("/digests/:id/view", h.ViewDigest)
		api.POST("/digests/:id/notify", h.NotifyValidators)
		api.POST("/digests/:id/test", h.SendTestDigest)
		api.POST("/digests/:id/send", h.SendDigest)

		api.GET("/mailings", h.GetMailings)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.pingDatabase(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.settings.Settings().Active {
		response.Digest = "active"
	} else {
		response.Digest = "inactive"
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func (h *Handlers) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
