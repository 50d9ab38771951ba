package usecases

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/abelzeko/riverflow/internal/conditions"
	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/integration/usgs"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	baseMapURL          = "https://maps.google.com/?q="
	displayDateLayout   = "Mon Jan 02 2006"
	displayTimeLayout   = "15:04"
	risingFastThreshold = 130 // percent of the oldest reading
)

// NormalizeResult is the output of one normalization pass
type NormalizeResult struct {
	Rivers  []entities.RiverView
	Skipped int // malformed entries dropped
}

// Normalizer turns USGS time series into river view models
type Normalizer struct {
	conditions *conditions.Table
	sites      map[string]entities.Site
	clock      clockwork.Clock
	location   *time.Location
	logger     zerolog.Logger
}

// NewNormalizer creates a Normalizer. A nil clock uses real time; a nil location uses time.Local.
func NewNormalizer(table *conditions.Table, sites []entities.Site, clock clockwork.Clock, location *time.Location, logger zerolog.Logger) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if location == nil {
		location = time.Local
	}
	byID := make(map[string]entities.Site, len(sites))
	for _, s := range sites {
		byID[s.ID] = s
	}
	return &Normalizer{
		conditions: table,
		sites:      byID,
		clock:      clock,
		location:   location,
		logger:     logger,
	}
}

// Normalize builds one RiverView per entry that has samples, preserving payload order.
// Entries without samples are dropped silently; malformed entries are logged and counted.
func (n *Normalizer) Normalize(series []usgs.TimeSeries) NormalizeResult {
	today := n.clock.Now().In(n.location)
	result := NormalizeResult{Rivers: make([]entities.RiverView, 0, len(series))}

	for i, ts := range series {
		// Some sites do not report the requested parameter.
		raw := ts.RawSamples()
		if len(raw) == 0 {
			continue
		}

		river, err := n.buildRiver(ts, raw, today)
		if err != nil {
			result.Skipped++
			n.logger.Warn().
				Err(err).
				Int("index", i).
				Str("series", ts.Name).
				Msg("skipping malformed time series")
			continue
		}
		result.Rivers = append(result.Rivers, river)
	}

	return result
}

func (n *Normalizer) buildRiver(ts usgs.TimeSeries, raw []usgs.RawSample, today time.Time) (entities.RiverView, error) {
	siteID, err := ts.SiteID()
	if err != nil {
		return entities.RiverView{}, err
	}
	lat, lon, err := ts.Coordinates()
	if err != nil {
		return entities.RiverView{}, fmt.Errorf("site %s: %w", siteID, err)
	}

	// The service returns samples in chronological order.
	oldest, err := raw[0].Parse()
	if err != nil {
		return entities.RiverView{}, fmt.Errorf("site %s: %w", siteID, err)
	}
	newest, err := raw[len(raw)-1].Parse()
	if err != nil {
		return entities.RiverView{}, fmt.Errorf("site %s: %w", siteID, err)
	}

	current := conditions.Truncate(newest.Value)
	previous := conditions.Truncate(oldest.Value)
	if _, err := conditions.LevelFor(previous); err != nil {
		return entities.RiverView{}, fmt.Errorf("site %s oldest reading: %w", siteID, err)
	}
	condition, err := n.conditions.Classify(current)
	if err != nil {
		return entities.RiverView{}, fmt.Errorf("site %s newest reading: %w", siteID, err)
	}

	pct := percentChanged(previous, current)
	risingFast := current > 0
	if pct != nil {
		risingFast = *pct > risingFastThreshold
	}

	observed := newest.Time.In(n.location)
	displayDate := observed.Format(displayDateLayout)
	if sameDay(observed, today) {
		displayDate = ""
	}

	river := entities.RiverView{
		Name:           ts.SourceInfo.SiteName,
		MapLink:        mapLink(lat, lon),
		SiteID:         siteID,
		DisplayDate:    displayDate,
		DisplayTime:    observed.Format(displayTimeLayout),
		CurrentFlow:    current,
		PreviousFlow:   previous,
		PercentChanged: pct,
		Condition:      condition.Text,
		Level:          int(condition.Level),
		Rising:         current > previous,
		RisingFast:     risingFast,
		ObservedAt:     newest.Time,
	}
	if site, ok := n.sites[siteID]; ok {
		river.Class = site.Class
	}
	return river, nil
}

// percentChanged returns round(current/previous*100), or nil when previous is zero
func percentChanged(previous, current int) *int {
	if previous == 0 {
		return nil
	}
	pct := int(math.Round(float64(current) / float64(previous) * 100))
	return &pct
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func mapLink(lat, lon float64) string {
	return baseMapURL + strconv.FormatFloat(lat, 'f', -1, 64) + ",+" + strconv.FormatFloat(lon, 'f', -1, 64)
}
