// Package usgs fetches instantaneous values from the USGS Water Services API
package usgs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the Instantaneous Values endpoint
	DefaultBaseURL = "https://waterservices.usgs.gov/nwis/iv/"
	// ParameterDischarge is discharge in cubic feet per second
	ParameterDischarge = "00060"
	// LookbackPeriod is the ISO-8601 window requested on every fetch
	LookbackPeriod = "PT12H"
)

var (
	// ErrFetchFailed matches any *FetchError
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNoDataAvailable is returned when the service answers without a time-series array
	ErrNoDataAvailable = errors.New("no river data available")
)

// FetchError describes a failed request: transport, status, or body problems
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %s: %v", e.Message, e.Err)
	}
	return "fetch failed: " + e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// Client retrieves time series for a set of sites in a single request
type Client struct {
	http    *resty.Client
	baseURL string
	logger  zerolog.Logger
}

// NewClient creates a USGS client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    http,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "usgs").Logger(),
	}
}

// Fetch requests the lookback window of parameterCode for every site in one call
func (c *Client) Fetch(ctx context.Context, siteIDs []string, parameterCode string) ([]TimeSeries, error) {
	if len(siteIDs) == 0 {
		return nil, &FetchError{Message: "no sites to request"}
	}
	for _, id := range siteIDs {
		if id == "" || strings.Trim(id, "0123456789") != "" {
			return nil, &FetchError{Message: fmt.Sprintf("invalid site id %q", id)}
		}
	}
	if parameterCode == "" {
		parameterCode = ParameterDischarge
	}

	c.logger.Debug().
		Int("sites", len(siteIDs)).
		Str("parameter", parameterCode).
		Msg("sending request to USGS")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"parameterCd": parameterCode,
			"sites":       strings.Join(siteIDs, ","),
			"format":      "json",
			"period":      LookbackPeriod,
			"siteStatus":  "active",
		}).
		Get(c.baseURL)
	if err != nil {
		c.logger.Error().Err(err).Msg("request failed")
		return nil, &FetchError{Message: "request failed", Err: err}
	}

	if !resp.IsSuccess() {
		c.logger.Error().Int("status", resp.StatusCode()).Msg("unexpected status code")
		return nil, &FetchError{Message: fmt.Sprintf("unexpected status code: %s", resp.Status())}
	}

	var payload Response
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		c.logger.Error().Err(err).Msg("failed to decode response")
		return nil, &FetchError{Message: "malformed response body", Err: err}
	}

	if payload.Value == nil || payload.Value.TimeSeries == nil {
		c.logger.Warn().Msg("response has no time series")
		return nil, ErrNoDataAvailable
	}

	series := *payload.Value.TimeSeries
	c.logger.Debug().Int("entries", len(series)).Msg("received time series")
	return series, nil
}
