package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/integration/usgs"
	"github.com/abelzeko/riverflow/internal/observability"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	series    []usgs.TimeSeries
	err       error
	calls     int
	lastSites []string
	lastParam string
	block     chan struct{} // when set, Fetch waits for it to close
	started   chan struct{} // when set, closed on first call
}

func (f *fakeFetcher) Fetch(ctx context.Context, siteIDs []string, parameterCode string) ([]usgs.TimeSeries, error) {
	f.mu.Lock()
	f.calls++
	f.lastSites = siteIDs
	f.lastParam = parameterCode
	started, block := f.started, f.block
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.series, f.err
}

type failingRepo struct {
	repository.MemoryStatusRepository
}

func (r *failingRepo) SaveStatus(context.Context, entities.Status) error {
	return errors.New("disk full")
}

func newRefresh(t *testing.T, fetcher TelemetryFetcher, repo repository.StatusRepository, metrics *observability.Metrics) *RefreshUseCase {
	t.Helper()
	return NewRefreshUseCase(RefreshConfig{
		Repo:          repo,
		Fetcher:       fetcher,
		Normalizer:    testNormalizer(t, entities.Site{ID: "09058000", Class: "V"}),
		SiteIDs:       []string{"09058000", "07091200"},
		ParameterCode: "00060",
		Clock:         clockwork.NewFakeClockAt(now),
		Metrics:       metrics,
		Logger:        zerolog.Nop(),
	})
}

func TestRefresh_Ready(t *testing.T) {
	fetcher := &fakeFetcher{series: []usgs.TimeSeries{
		timeSeries("09058000", "COLORADO", rawSample("100", now.Add(-time.Hour)), rawSample("230", now)),
		timeSeries("07091200", "ARKANSAS"),
		func() usgs.TimeSeries {
			ts := timeSeries("09070000", "BROKEN", rawSample("100", now))
			ts.SourceInfo.GeoLocation = nil
			return ts
		}(),
	}}
	repo := repository.NewMemoryStatusRepository()
	metrics := observability.NewMetricsForTesting()
	uc := newRefresh(t, fetcher, repo, metrics)

	require.NoError(t, uc.RefreshRiverData(context.Background()))

	assert.Equal(t, []string{"09058000", "07091200"}, fetcher.lastSites)
	assert.Equal(t, "00060", fetcher.lastParam)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.StateReady, status.State)
	assert.Empty(t, status.Reason)
	require.Len(t, status.Rivers, 1)
	assert.Equal(t, "V", status.Rivers[0].Class)
	assert.True(t, status.Rivers[0].RisingFast)
	assert.Equal(t, 1, status.Skipped)
	assert.NotEmpty(t, status.CycleID)
	assert.True(t, status.UpdatedAt.Equal(now))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues(observability.OutcomeReady)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EntriesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RiversReported))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(metrics.LastSuccess))
}

func TestRefresh_NoData(t *testing.T) {
	fetcher := &fakeFetcher{err: usgs.ErrNoDataAvailable}
	repo := repository.NewMemoryStatusRepository()
	metrics := observability.NewMetricsForTesting()
	uc := newRefresh(t, fetcher, repo, metrics)

	err := uc.RefreshRiverData(context.Background())
	assert.ErrorIs(t, err, usgs.ErrNoDataAvailable)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.StateError, status.State)
	assert.Equal(t, entities.ReasonNoData, status.Reason)
	assert.Equal(t, "no river data available", status.Message)
	assert.Empty(t, status.Rivers)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues(observability.OutcomeNoData)))
}

func TestRefresh_FetchFailedReplacesPreviousList(t *testing.T) {
	fetcher := &fakeFetcher{series: []usgs.TimeSeries{
		timeSeries("09058000", "COLORADO", rawSample("100", now)),
	}}
	repo := repository.NewMemoryStatusRepository()
	metrics := observability.NewMetricsForTesting()
	uc := newRefresh(t, fetcher, repo, metrics)

	require.NoError(t, uc.RefreshRiverData(context.Background()))

	fetcher.err = &usgs.FetchError{Message: "unexpected status code: 502 Bad Gateway"}
	err := uc.RefreshRiverData(context.Background())
	assert.ErrorIs(t, err, usgs.ErrFetchFailed)

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.StateError, status.State)
	assert.Equal(t, entities.ReasonFetchFailed, status.Reason)
	assert.Contains(t, status.Message, "502")
	assert.Empty(t, status.Rivers)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues(observability.OutcomeFetchFailed)))
}

func TestRefresh_StoreFailure(t *testing.T) {
	fetcher := &fakeFetcher{series: []usgs.TimeSeries{}}
	metrics := observability.NewMetricsForTesting()
	uc := newRefresh(t, fetcher, &failingRepo{}, metrics)

	err := uc.RefreshRiverData(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshCycles.WithLabelValues(observability.OutcomeStoreFailed)))
}

func TestRefresh_IgnoresOverlappingTrigger(t *testing.T) {
	fetcher := &fakeFetcher{
		series:  []usgs.TimeSeries{},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	started := fetcher.started
	repo := repository.NewMemoryStatusRepository()
	metrics := observability.NewMetricsForTesting()
	uc := newRefresh(t, fetcher, repo, metrics)

	done := make(chan error, 1)
	go func() { done <- uc.RefreshRiverData(context.Background()) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never started")
	}

	err := uc.RefreshRiverData(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshOverlaps))

	close(fetcher.block)
	require.NoError(t, <-done)

	fetcher.mu.Lock()
	assert.Equal(t, 1, fetcher.calls)
	fetcher.mu.Unlock()

	// The guard is released once the cycle settles.
	require.NoError(t, uc.RefreshRiverData(context.Background()))
}

func TestRefresh_MarkLoading(t *testing.T) {
	repo := repository.NewMemoryStatusRepository()
	uc := newRefresh(t, &fakeFetcher{}, repo, nil)

	require.NoError(t, repo.SaveStatus(context.Background(), entities.Status{State: entities.StateReady}))
	require.NoError(t, uc.MarkLoading(context.Background()))

	status, err := repo.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entities.StateLoading, status.State)
	assert.True(t, status.UpdatedAt.Equal(now))
}
