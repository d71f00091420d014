package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/appointment"
	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/doctor"
	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/notification"
	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/router"
	"github.com/jwalitptl/clinic-api/internal/saga"
	"github.com/jwalitptl/clinic-api/internal/schedule"
	"github.com/jwalitptl/clinic-api/internal/triage"
	"github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(nil)
	m := metrics.NewMetrics("clinic", "api", prometheus.DefaultRegisterer)

	// Projection target: durable when a database is configured, in-process
	// otherwise.
	var repo readmodel.Repository = readmodel.NewMemoryRepository()
	if cfg.Database.Enabled {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		repo = readmodel.NewPostgresRepository(db)
	}
	projector := readmodel.NewProjector(repo, lg)

	listeners := []appointment.Listener{projector.Apply}
	if cfg.Redis.Enabled {
		zl := log.Logger
		broker, err := redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &zl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
		listeners = append(listeners, appointment.PublishTo(broker, lg))
	}

	appointments := appointment.NewStore(m, listeners...)
	schedules := schedule.NewStore(m)
	doctors := doctor.NewRegistry()

	var assessor triage.Assessor
	if cfg.OpenAI.APIKey != "" {
		assessor, err = triage.NewOpenAIAssessor(triage.OpenAIConfig{
			APIKey:         cfg.OpenAI.APIKey,
			Model:          cfg.OpenAI.Model,
			BaseURL:        cfg.OpenAI.BaseURL,
			RateLimitRPM:   cfg.OpenAI.RateLimitRPM,
			RateLimitBurst: cfg.OpenAI.RateLimitBurst,
		}, m)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize triage assessor")
		}
	} else {
		lg.Warn("no OpenAI key configured, using keyword triage")
		assessor = triage.NewKeywordAssessor()
	}

	var notifier notification.Notifier = notification.NoopNotifier{}
	if cfg.Email.Enabled {
		notifier = notification.NewEmailNotifier(notification.EmailConfig{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			PatientDomain: cfg.Email.PatientDomain,
		}, lg, m)
	}

	scheduling := saga.NewSchedulingSaga(appointments, schedules, lg, m)
	cancellations := saga.NewCancellationSaga(appointments, schedules, lg, m)
	reschedules := saga.NewReschedulingSaga(appointments, schedules, lg, m)
	dayCancels := saga.NewDayCancellationSaga(appointments, schedules, repo, assessor, cancellations, notifier, lg, m)

	jwtSvc := auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.Expiry())
	h := handler.NewHandler(handler.Config{
		Appointments:  appointments,
		Schedules:     schedules,
		Rows:          repo,
		Doctors:       doctors,
		Scheduling:    scheduling,
		Cancellations: cancellations,
		Reschedules:   reschedules,
		DayCancels:    dayCancels,
		JWT:           jwtSvc,
		APISecret:     cfg.Auth.APISecret,
		Validator:     validator.New(),
		Logger:        lg,
	})

	r := router.NewRouter(middleware.NewAuthMiddleware(jwtSvc), h, router.Config{
		RateLimit:     rate.Limit(cfg.Limits.RateLimitRPS),
		RateBurst:     cfg.Limits.RateBurst,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "clinic_http",
		AuthEnabled:   cfg.Auth.Enabled,
		Registerer:    prometheus.DefaultRegisterer,
	})

	// Mark stale scheduled appointments as missed directly on the aggregate.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := worker.NewMissedSweeper(repo, aggregateMarker{appointments}, time.Hour, 5*time.Minute, lg)
	go sweeper.Start(sweepCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	lg.Info("server started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

// aggregateMarker adapts the appointment store to the sweeper's Marker.
type aggregateMarker struct {
	store *appointment.Store
}

func (m aggregateMarker) MarkAsMissed(ctx context.Context, id string) error {
	return m.store.MarkAsMissed(ctx, id)
}
