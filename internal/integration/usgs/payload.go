package usgs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation errors for individual time-series entries
var (
	ErrMissingSiteCode    = errors.New("missing site code")
	ErrMissingGeoLocation = errors.New("missing geolocation")
	ErrBadSample          = errors.New("bad sample")
)

// Response is the top-level Instantaneous Values JSON document
type Response struct {
	Value *ResponseValue `json:"value"`
}

// ResponseValue wraps the time-series array; a nil TimeSeries means the key was absent
type ResponseValue struct {
	TimeSeries *[]TimeSeries `json:"timeSeries"`
}

// TimeSeries is one site/parameter entry of the payload
type TimeSeries struct {
	Name       string     `json:"name"`
	SourceInfo SourceInfo `json:"sourceInfo"`
	Values     []ValueSet `json:"values"`
}

// SourceInfo describes the monitoring site
type SourceInfo struct {
	SiteName    string       `json:"siteName"`
	SiteCode    []SiteCode   `json:"siteCode"`
	GeoLocation *GeoLocation `json:"geoLocation"`
}

// SiteCode is a site identifier within an agency network
type SiteCode struct {
	Value      string `json:"value"`
	Network    string `json:"network"`
	AgencyCode string `json:"agencyCode"`
}

// GeoLocation wraps the geographic coordinates of a site
type GeoLocation struct {
	GeogLocation *GeogLocation `json:"geogLocation"`
}

// GeogLocation holds WGS84 coordinates
type GeogLocation struct {
	SRS       string   `json:"srs"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ValueSet is one method's list of samples
type ValueSet struct {
	Value []RawSample `json:"value"`
}

// RawSample is a single reading as sent by the service
type RawSample struct {
	Value      string   `json:"value"`
	Qualifiers []string `json:"qualifiers"`
	DateTime   string   `json:"dateTime"`
}

// Sample is a parsed reading
type Sample struct {
	Time  time.Time
	Value float64
}

// RawSamples returns the samples of the first value set, in service (chronological) order
func (ts TimeSeries) RawSamples() []RawSample {
	if len(ts.Values) == 0 {
		return nil
	}
	return ts.Values[0].Value
}

// SiteID returns the first site code of the entry
func (ts TimeSeries) SiteID() (string, error) {
	if len(ts.SourceInfo.SiteCode) == 0 {
		return "", ErrMissingSiteCode
	}
	id := strings.TrimSpace(ts.SourceInfo.SiteCode[0].Value)
	if id == "" {
		return "", ErrMissingSiteCode
	}
	return id, nil
}

// Coordinates returns the latitude and longitude of the site
func (ts TimeSeries) Coordinates() (float64, float64, error) {
	geo := ts.SourceInfo.GeoLocation
	if geo == nil || geo.GeogLocation == nil || geo.GeogLocation.Latitude == nil || geo.GeogLocation.Longitude == nil {
		return 0, 0, ErrMissingGeoLocation
	}
	return *geo.GeogLocation.Latitude, *geo.GeogLocation.Longitude, nil
}

// Parse converts a raw sample into a typed Sample
func (s RawSample) Parse() (Sample, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: value %q", ErrBadSample, s.Value)
	}
	t, err := time.Parse(time.RFC3339, s.DateTime)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: dateTime %q", ErrBadSample, s.DateTime)
	}
	return Sample{Time: t, Value: v}, nil
}
