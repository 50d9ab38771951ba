package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/integration/usgs"
	"github.com/abelzeko/riverflow/internal/observability"
	"github.com/abelzeko/riverflow/internal/reference"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mountain = time.FixedZone("MDT", -6*3600)
	now      = time.Date(2026, 10, 17, 12, 0, 0, 0, mountain)
)

const ivResponse = `{
  "value": {
    "timeSeries": [
      {
        "sourceInfo": {
          "siteName": "ARKANSAS RIVER NEAR NATHROP, CO",
          "siteCode": [{ "value": "07091200" }],
          "geoLocation": { "geogLocation": { "latitude": 38.7497222, "longitude": -106.0658333 } }
        },
        "values": [{ "value": [
          { "value": "100", "dateTime": "2026-10-17T00:00:00.000-06:00" },
          { "value": "250", "dateTime": "2026-10-17T11:45:00.000-06:00" }
        ] }],
        "name": "USGS:07091200:00060:00000"
      },
      {
        "sourceInfo": {
          "siteName": "COLORADO RIVER NEAR KREMMLING, CO",
          "siteCode": [{ "value": "09058000" }],
          "geoLocation": { "geogLocation": { "latitude": 40.03692222, "longitude": -106.4397639 } }
        },
        "values": [{ "value": [
          { "value": "1240", "dateTime": "2026-10-16T23:45:00.000-06:00" },
          { "value": "1310", "dateTime": "2026-10-16T23:50:00.000-06:00" }
        ] }],
        "name": "USGS:09058000:00060:00000"
      },
      {
        "sourceInfo": {
          "siteName": "EAGLE RIVER BELOW GYPSUM, CO",
          "siteCode": [{ "value": "09070000" }],
          "geoLocation": { "geogLocation": { "latitude": 39.649, "longitude": -106.953 } }
        },
        "values": [{ "value": [] }],
        "name": "USGS:09070000:00060:00000"
      }
    ]
  }
}`

// mockUSGSServer serves body for every request and records the last query string
func mockUSGSServer(t *testing.T, status int, body string, lastQuery *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lastQuery != nil {
			lastQuery.Store(r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body) //nolint:errcheck
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		USGSBaseURL:     baseURL,
		ParameterCode:   "00060",
		FetchTimeout:    5 * time.Second,
		RefreshSchedule: "@every 1h",
		DBPath:          filepath.Join(t.TempDir(), "riverflow.db"),
		HTTPAddr:        "127.0.0.1:0",
		Location:        mountain,
		LogLevel:        "debug",
		ShutdownTimeout: 5 * time.Second,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(cfg, zerolog.Nop(), observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(now))
	require.NoError(t, err)
	return a
}

// TestRefreshCycleEndToEnd runs one cycle against a mock upstream and reads the result back over HTTP
func TestRefreshCycleEndToEnd(t *testing.T) {
	var lastQuery atomic.Value
	upstream := mockUSGSServer(t, http.StatusOK, ivResponse, &lastQuery)
	a := newTestApp(t, testConfig(t, upstream.URL))
	defer a.repo.Close()

	ctx := context.Background()
	require.NoError(t, a.refresh.MarkLoading(ctx))

	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.refresh.RefreshRiverData(ctx))

	// Only numeric site IDs from the reference data go upstream.
	query := lastQuery.Load().(url.Values)
	ref, err := reference.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(ref.SiteIDs(), ","), query.Get("sites"))
	assert.NotContains(t, query.Get("sites"), "see-notes")
	assert.Equal(t, "PT12H", query.Get("period"))

	rec = httptest.NewRecorder()
	a.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rivers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status entities.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, entities.StateReady, status.State)
	require.Len(t, status.Rivers, 2)

	arkansas := status.Rivers[0]
	assert.Equal(t, "07091200", arkansas.SiteID)
	assert.Equal(t, 250, arkansas.CurrentFlow)
	assert.Equal(t, 100, arkansas.PreviousFlow)
	assert.True(t, arkansas.RisingFast)
	assert.Equal(t, "Low but runnable for small craft.", arkansas.Condition)
	assert.Equal(t, "III", arkansas.Class)
	assert.Empty(t, arkansas.DisplayDate)
	assert.Equal(t, "11:45", arkansas.DisplayTime)

	colorado := status.Rivers[1]
	assert.Equal(t, "09058000", colorado.SiteID)
	assert.False(t, colorado.RisingFast)
	assert.Equal(t, 5, colorado.Level)
	assert.Equal(t, "V", colorado.Class)
	assert.Equal(t, "Fri Oct 16 2026", colorado.DisplayDate)

	rec = httptest.NewRecorder()
	a.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshCycleUpstreamFailure(t *testing.T) {
	upstream := mockUSGSServer(t, http.StatusBadGateway, "bad gateway", nil)
	a := newTestApp(t, testConfig(t, upstream.URL))
	defer a.repo.Close()

	ctx := context.Background()
	err := a.refresh.RefreshRiverData(ctx)
	assert.ErrorIs(t, err, usgs.ErrFetchFailed)

	status, err := a.repo.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.StateError, status.State)
	assert.Equal(t, entities.ReasonFetchFailed, status.Reason)
	assert.Empty(t, status.Rivers)
}

func TestRefreshCycleNoData(t *testing.T) {
	upstream := mockUSGSServer(t, http.StatusOK, `{"value": {}}`, nil)
	a := newTestApp(t, testConfig(t, upstream.URL))
	defer a.repo.Close()

	ctx := context.Background()
	err := a.refresh.RefreshRiverData(ctx)
	assert.ErrorIs(t, err, usgs.ErrNoDataAvailable)

	status, err := a.repo.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.StateError, status.State)
	assert.Equal(t, entities.ReasonNoData, status.Reason)
}

// TestRunUntilCancelled starts the full refresher and stops it once the startup cycle has settled
func TestRunUntilCancelled(t *testing.T) {
	upstream := mockUSGSServer(t, http.StatusOK, ivResponse, nil)
	cfg := testConfig(t, upstream.URL)
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool {
		status, err := a.repo.GetStatus(context.Background())
		return err == nil && status.State == entities.StateReady
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

// TestFetchLiveUSGS checks the real service still answers in the expected shape
func TestFetchLiveUSGS(t *testing.T) {
	// Skip this test in CI environments or in short mode
	if os.Getenv("CI") == "true" || testing.Short() {
		t.Skip("Skipping live USGS test")
	}

	ref, err := reference.Load("", "")
	require.NoError(t, err)

	client := usgs.NewClient("", 20*time.Second, zerolog.Nop())
	series, err := client.Fetch(context.Background(), ref.SiteIDs(), usgs.ParameterDischarge)
	if err != nil {
		// Don't fail the test completely if it's just a temporary network issue
		t.Logf("Warning: failed to fetch USGS data: %v", err)
		t.Skip("Skipping test due to network issues - this is not a code bug")
	}

	t.Logf("Successfully fetched %d time series", len(series))
	for _, ts := range series {
		_, err := ts.SiteID()
		assert.NoError(t, err)
	}
}
