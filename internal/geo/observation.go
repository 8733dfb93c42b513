// Package geo holds the coordinate data model and the parsing heuristics
// for the target service's obfuscated response format.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Source identifies which capture channel produced an observation.
type Source string

const (
	SourcePageHook Source = "page_hook"
	SourceDebugger Source = "debugger"
	SourceScrape   Source = "scrape"
	SourceAutoPlay Source = "auto_play"
)

// ErrOutOfRange is returned for values that are not a plausible coordinate.
var ErrOutOfRange = errors.New("coordinate out of range")

// Observation is one ground-truth coordinate captured from the target
// page's network traffic.
type Observation struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Place      string    `json:"place,omitempty"`
	Language   string    `json:"language,omitempty"`
	Source     Source    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
	TabID      string    `json:"tab_id,omitempty"`
}

// Validate rejects non-finite and out-of-range values before an observation
// is allowed anywhere near the automation loop.
func (o Observation) Validate() error {
	if !ValidLatLon(o.Lat, o.Lon) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrOutOfRange, o.Lat, o.Lon)
	}
	return nil
}

// Signature returns the 5-decimal-place dedup key for this observation.
// Two observations with the same signature are the same physical fact and
// must not be delivered twice.
func (o Observation) Signature() string {
	return fmt.Sprintf("%.5f:%.5f:%s", o.Lat, o.Lon, o.Source)
}

// ValidLatLon reports whether the pair is finite and inside the valid
// latitude/longitude ranges.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
