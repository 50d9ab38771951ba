package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/abelzeko/riverflow/internal/api"
	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/integration/usgs"
	"github.com/abelzeko/riverflow/internal/observability"
	"github.com/abelzeko/riverflow/internal/reference"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("riverflow-refresher", cfg.LogLevel)
	logger.Info().Msg("starting river flow refresher")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, observability.NewMetrics(), clockwork.NewRealClock())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize refresher")
	}

	if err := a.run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("refresher stopped with error")
	}
	logger.Info().Msg("refresher stopped")
}

// app wires the refresh cycle, its scheduler and the HTTP front end
type app struct {
	cfg       *config.Config
	repo      repository.StatusRepository
	refresh   *usecases.RefreshUseCase
	server    *api.Server
	scheduler *cron.Cron
	logger    zerolog.Logger
}

func newApp(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*app, error) {
	ref, err := reference.Load(cfg.SitesFile, cfg.ConditionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	repo, err := repository.NewSQLiteStatusRepository(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	refresh := usecases.NewRefreshUseCase(usecases.RefreshConfig{
		Repo:          repo,
		Fetcher:       usgs.NewClient(cfg.USGSBaseURL, cfg.FetchTimeout, logger),
		Normalizer:    usecases.NewNormalizer(ref.Conditions(), ref.Sites(), clock, cfg.Location, logger),
		SiteIDs:       ref.SiteIDs(),
		ParameterCode: cfg.ParameterCode,
		Clock:         clock,
		Metrics:       metrics,
		Logger:        logger,
	})

	server := api.NewServer(api.ServerConfig{
		Addr:    cfg.HTTPAddr,
		UseCase: usecases.NewRiverUseCase(repo, nil, logger),
		Logger:  logger,
	})

	cronLogger := observability.NewCronLogger(logger)
	scheduler := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	logger.Info().
		Int("sites", len(ref.SiteIDs())).
		Str("schedule", cfg.RefreshSchedule).
		Str("db", cfg.DBPath).
		Msg("refresher configured")

	return &app{
		cfg:       cfg,
		repo:      repo,
		refresh:   refresh,
		server:    server,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// run publishes the loading state, starts the schedule and the HTTP server,
// and blocks until ctx is cancelled or the server fails
func (a *app) run(ctx context.Context) error {
	defer a.repo.Close()

	if err := a.refresh.MarkLoading(ctx); err != nil {
		return err
	}

	if _, err := a.scheduler.AddFunc(a.cfg.RefreshSchedule, func() { a.refreshOnce(ctx, "scheduled") }); err != nil {
		return fmt.Errorf("failed to set up cron job: %w", err)
	}

	// First cycle runs right away; the page shows loading until it settles.
	var startup sync.WaitGroup
	startup.Add(1)
	go func() {
		defer startup.Done()
		a.refreshOnce(ctx, "startup")
	}()
	a.scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown failed")
	}

	select {
	case <-a.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		a.logger.Warn().Msg("refresh cycle still running at shutdown")
	}
	startup.Wait()

	return runErr
}

func (a *app) refreshOnce(ctx context.Context, trigger string) {
	err := a.refresh.RefreshRiverData(ctx)
	switch {
	case err == nil:
	case errors.Is(err, usecases.ErrRefreshInProgress):
		a.logger.Debug().Str("trigger", trigger).Msg("refresh skipped, previous cycle still running")
	default:
		a.logger.Warn().Err(err).Str("trigger", trigger).Msg("refresh cycle failed")
	}
}
