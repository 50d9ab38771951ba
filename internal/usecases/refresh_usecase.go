package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/integration/usgs"
	"github.com/abelzeko/riverflow/internal/observability"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrRefreshInProgress is returned when a refresh is triggered while another is running
var ErrRefreshInProgress = errors.New("refresh already in progress")

// TelemetryFetcher retrieves raw time series for a set of sites
type TelemetryFetcher interface {
	Fetch(ctx context.Context, siteIDs []string, parameterCode string) ([]usgs.TimeSeries, error)
}

// RefreshConfig holds the collaborators of a RefreshUseCase
type RefreshConfig struct {
	Repo          repository.StatusRepository
	Fetcher       TelemetryFetcher
	Normalizer    *Normalizer
	SiteIDs       []string
	ParameterCode string
	Clock         clockwork.Clock
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// RefreshUseCase runs fetch cycles and publishes their result to the status repository
type RefreshUseCase struct {
	repo          repository.StatusRepository
	fetcher       TelemetryFetcher
	normalizer    *Normalizer
	siteIDs       []string
	parameterCode string
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        zerolog.Logger
	running       atomic.Bool
}

// NewRefreshUseCase creates a refresh use case
func NewRefreshUseCase(cfg RefreshConfig) *RefreshUseCase {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &RefreshUseCase{
		repo:          cfg.Repo,
		fetcher:       cfg.Fetcher,
		normalizer:    cfg.Normalizer,
		siteIDs:       cfg.SiteIDs,
		parameterCode: cfg.ParameterCode,
		clock:         clock,
		metrics:       metrics,
		logger:        cfg.Logger,
	}
}

// MarkLoading publishes the loading state, used once at startup before the first cycle
func (uc *RefreshUseCase) MarkLoading(ctx context.Context) error {
	status := entities.LoadingStatus()
	status.UpdatedAt = uc.clock.Now()
	if err := uc.repo.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to save loading status: %w", err)
	}
	return nil
}

// RefreshRiverData runs one fetch-normalize cycle and stores the outcome as a single
// status transition. Fetch failures are recorded in the status; the returned error
// is informational. Overlapping calls return ErrRefreshInProgress without fetching.
func (uc *RefreshUseCase) RefreshRiverData(ctx context.Context) error {
	if !uc.running.CompareAndSwap(false, true) {
		uc.metrics.RefreshOverlaps.Inc()
		uc.logger.Warn().Msg("refresh already running, ignoring trigger")
		return ErrRefreshInProgress
	}
	defer uc.running.Store(false)

	start := uc.clock.Now()
	cycleID := uuid.NewString()
	log := uc.logger.With().Str("cycle_id", cycleID).Logger()
	log.Info().Int("sites", len(uc.siteIDs)).Msg("starting river data refresh")

	status := entities.Status{CycleID: cycleID, Rivers: []entities.RiverView{}}
	outcome := observability.OutcomeReady

	series, fetchErr := uc.fetcher.Fetch(ctx, uc.siteIDs, uc.parameterCode)
	switch {
	case errors.Is(fetchErr, usgs.ErrNoDataAvailable):
		status.State = entities.StateError
		status.Reason = entities.ReasonNoData
		status.Message = fetchErr.Error()
		outcome = observability.OutcomeNoData
		log.Warn().Msg("upstream returned no time series")
	case fetchErr != nil:
		status.State = entities.StateError
		status.Reason = entities.ReasonFetchFailed
		status.Message = fetchErr.Error()
		outcome = observability.OutcomeFetchFailed
		log.Error().Err(fetchErr).Msg("failed to fetch river data")
	default:
		result := uc.normalizer.Normalize(series)
		status.State = entities.StateReady
		status.Rivers = result.Rivers
		status.Skipped = result.Skipped
		uc.metrics.EntriesSkipped.Add(float64(result.Skipped))
	}
	status.UpdatedAt = uc.clock.Now()

	if err := uc.repo.SaveStatus(ctx, status); err != nil {
		uc.metrics.RefreshCycles.WithLabelValues(observability.OutcomeStoreFailed).Inc()
		log.Error().Err(err).Msg("failed to save status")
		return fmt.Errorf("failed to save status: %w", err)
	}

	uc.metrics.RefreshCycles.WithLabelValues(outcome).Inc()
	uc.metrics.RefreshDuration.Observe(uc.clock.Since(start).Seconds())
	if status.State == entities.StateReady {
		uc.metrics.RiversReported.Set(float64(len(status.Rivers)))
		uc.metrics.LastSuccess.Set(float64(status.UpdatedAt.Unix()))
		log.Info().
			Int("rivers", len(status.Rivers)).
			Int("skipped", status.Skipped).
			Dur("duration", uc.clock.Since(start)).
			Msg("river data refresh complete")
	}

	if fetchErr != nil {
		return fmt.Errorf("refresh failed: %w", fetchErr)
	}
	return nil
}
