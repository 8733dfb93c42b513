// Package status exposes a local websocket feed of automation events so
// external tooling (the monitor TUI, mainly) can watch a run live.
package status

import "time"

// Event kinds published on the feed.
const (
	EventPhase      = "PHASE"
	EventCoordinate = "COORDINATE"
	EventPrediction = "PREDICTION"
	EventRound      = "ROUND"
	EventSupervisor = "SUPERVISOR"
	EventError      = "ERROR"
	EventSnapshot   = "SNAPSHOT"
)

// Event is one entry on the status feed.
type Event struct {
	Type      string    `json:"type"`
	TabID     string    `json:"tab_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Round     int       `json:"round,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	Country   string    `json:"country,omitempty"`
	Score     int       `json:"score,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Snapshot is the catch-up state sent to a client on join.
type Snapshot struct {
	Type   string  `json:"type"`
	Events []Event `json:"events"`
}
