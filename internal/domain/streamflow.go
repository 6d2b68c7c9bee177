package domain

import (
	"context"
	"fmt"
	"time"
)

// CubicFeetToMeters converts ft³/s to m³/s.
const CubicFeetToMeters = 0.0283168

// Observation is one streamflow value at one location.
type Observation struct {
	LocationID string
	ValueTime  time.Time
	Value      float64 // m³/s
}

// NWMLocationID is the location id of an NWM v3.0 reach.
func NWMLocationID(featureID int64) string {
	return fmt.Sprintf("nwm30-%d", featureID)
}

// USGSLocationID is the location id of a USGS gauge.
func USGSLocationID(site string) string {
	return "usgs-" + site
}

// SiteSeriesFetcher returns the discharge series of a gauge over [start, end].
type SiteSeriesFetcher interface {
	SiteSeries(ctx context.Context, site string, start, end time.Time) ([]Observation, error)
}
