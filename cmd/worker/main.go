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
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/readmodel"
	"github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

// workerConfig is read from the environment with the WORKER prefix.
type workerConfig struct {
	DatabaseURL   string        `envconfig:"DATABASE_URL" required:"true"`
	APIBaseURL    string        `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	GracePeriod   time.Duration `envconfig:"GRACE_PERIOD" default:"1h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
}

func main() {
	var cfg workerConfig
	if err := envconfig.Process("WORKER", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	lg := logger.NewLogger(nil)

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	marker := &httpMarker{
		baseURL: cfg.APIBaseURL,
		jwt:     auth.NewJWTService(cfg.JWTSecret, time.Hour),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	sweeper := worker.NewMissedSweeper(readmodel.NewPostgresRepository(db), marker,
		cfg.GracePeriod, cfg.SweepInterval, lg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	lg.Info("missed appointment worker started",
		"interval", cfg.SweepInterval.String(), "grace", cfg.GracePeriod.String())
	sweeper.Start(ctx)
	lg.Info("worker stopped")
}

// httpMarker marks appointments missed through the API server, which owns the
// appointment aggregate.
type httpMarker struct {
	baseURL string
	jwt     auth.JWTService
	client  *http.Client
}

func (m *httpMarker) MarkAsMissed(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/api/v1/appointments/%s/missed", m.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	token, err := m.jwt.GenerateAccessToken("missed-worker")
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Precondition failures mean another writer got there first.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	return fmt.Errorf("mark missed %s: unexpected status %d", id, resp.StatusCode)
}
