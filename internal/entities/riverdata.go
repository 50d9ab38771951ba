// Package entities contains the core domain objects for the riverflow application
package entities

import (
	"time"
)

// Site is a monitored river site from the reference dataset
type Site struct {
	ID    string `json:"value"` // USGS site number
	Label string `json:"label"` // Display name used by the reference dataset
	Class string `json:"class"` // Whitewater class, empty when unknown
}

// RiverView is the per-site view model rebuilt on every refresh cycle
type RiverView struct {
	Name           string    `json:"name"`
	MapLink        string    `json:"mapLink"`
	SiteID         string    `json:"siteId"`
	DisplayDate    string    `json:"displayDate"`
	DisplayTime    string    `json:"displayTime"`
	CurrentFlow    int       `json:"currentFlow"`
	PreviousFlow   int       `json:"previousFlow"`
	PercentChanged *int      `json:"percentChanged"` // nil when the previous flow is zero
	Condition      string    `json:"condition"`
	Level          int       `json:"level"`
	Rising         bool      `json:"rising"`
	RisingFast     bool      `json:"risingFast"`
	Class          string    `json:"class,omitempty"`
	ObservedAt     time.Time `json:"observedAt"`
}

// State is the presentation state of the river list
type State string

const (
	StateLoading State = "loading"
	StateError   State = "error"
	StateReady   State = "ready"
)

// Reasons attached to StateError
const (
	ReasonFetchFailed = "fetch_failed"
	ReasonNoData      = "no_data"
)

// Status is the result of the latest refresh cycle
type Status struct {
	State     State       `json:"state"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message,omitempty"`
	Rivers    []RiverView `json:"rivers"`
	Skipped   int         `json:"skipped"`
	CycleID   string      `json:"cycleId,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// LoadingStatus is reported before the first refresh cycle settles
func LoadingStatus() Status {
	return Status{State: StateLoading, Rivers: []RiverView{}}
}
