// Package handler exposes the scheduling service over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/doctor"
	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/saga"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

// Handler contains dependencies for all handlers
type Handler struct {
	appointments *appointment.Store
	schedules    *schedule.Store
	rows         readmodel.Reader
	doctors      *doctor.Registry

	scheduling    *saga.SchedulingSaga
	cancellations *saga.CancellationSaga
	reschedules   *saga.ReschedulingSaga
	dayCancels    *saga.DayCancellationSaga

	jwt       auth.JWTService
	apiSecret string
	validator *validator.Validator
	logger    *logger.Logger
}

type Config struct {
	Appointments *appointment.Store
	Schedules    *schedule.Store
	Rows         readmodel.Reader
	Doctors      *doctor.Registry

	Scheduling    *saga.SchedulingSaga
	Cancellations *saga.CancellationSaga
	Reschedules   *saga.ReschedulingSaga
	DayCancels    *saga.DayCancellationSaga

	JWT       auth.JWTService
	APISecret string
	Validator *validator.Validator
	Logger    *logger.Logger
}

// NewHandler creates a new handler instance
func NewHandler(cfg Config) *Handler {
	return &Handler{
		appointments:  cfg.Appointments,
		schedules:     cfg.Schedules,
		rows:          cfg.Rows,
		doctors:       cfg.Doctors,
		scheduling:    cfg.Scheduling,
		cancellations: cfg.Cancellations,
		reschedules:   cfg.Reschedules,
		dayCancels:    cfg.DayCancels,
		jwt:           cfg.JWT,
		apiSecret:     cfg.APISecret,
		validator:     cfg.Validator,
		logger:        cfg.Logger,
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now(),
	})
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
