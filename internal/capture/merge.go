// Package capture implements the two coordinate-capture channels and the
// merge step that funnels them into one "latest known ground truth" per
// tab.
package capture

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

// Channel names the capture path an observation arrived through. The two
// channels keep independent dedup state: they may observe the same
// physical coordinate under different source tags.
type Channel string

const (
	ChannelPageHook  Channel = "page"
	ChannelInspector Channel = "inspector"
)

// Persister stores the latest accepted observation for cross-reload
// recovery. Implemented by the sqlite store.
type Persister interface {
	SaveObservation(obs geo.Observation) error
}

// Merger validates, deduplicates and delivers observations. One Merger
// serves all tabs; all state inside is keyed by tab id so nothing leaks
// across tabs.
type Merger struct {
	mu       sync.Mutex
	latest   map[string]geo.Observation // tab id -> latest accepted
	lastSig  map[string]string          // tab id + channel -> signature
	lastSeen map[string]time.Time       // tab id -> last accept time

	persist Persister
	onAcc   func(obs geo.Observation, ch Channel)
	log     zerolog.Logger
}

// NewMerger creates a Merger. persist may be nil (tests); onAccept is
// invoked for every accepted (non-suppressed) observation.
func NewMerger(persist Persister, onAccept func(obs geo.Observation, ch Channel)) *Merger {
	return &Merger{
		latest:   make(map[string]geo.Observation),
		lastSig:  make(map[string]string),
		lastSeen: make(map[string]time.Time),
		persist:  persist,
		onAcc:    onAccept,
		log:      logging.Component("merge"),
	}
}

// Apply runs the merge step for one observation. Returns true when the
// observation was accepted and delivered, false when it was suppressed as
// a duplicate. Invalid coordinates return an error and leave all state
// untouched.
func (m *Merger) Apply(obs geo.Observation, ch Channel) (bool, error) {
	if err := obs.Validate(); err != nil {
		return false, err
	}
	if obs.CapturedAt.IsZero() {
		obs.CapturedAt = time.Now()
	}

	sig := obs.Signature()
	key := obs.TabID + "|" + string(ch)

	m.mu.Lock()
	if m.lastSig[key] == sig {
		m.mu.Unlock()
		return false, nil
	}
	m.lastSig[key] = sig
	m.latest[obs.TabID] = obs
	m.lastSeen[obs.TabID] = obs.CapturedAt
	m.mu.Unlock()

	if m.persist != nil {
		if err := m.persist.SaveObservation(obs); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist observation")
		}
	}

	m.log.Debug().
		Str("tab", obs.TabID).Str("channel", string(ch)).
		Float64("lat", obs.Lat).Float64("lon", obs.Lon).Str("place", obs.Place).
		Msg("coordinate accepted")

	if m.onAcc != nil {
		m.onAcc(obs, ch)
	}
	return true, nil
}

// Latest returns the most recently accepted observation for a tab.
func (m *Merger) Latest(tabID string) (geo.Observation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.latest[tabID]
	return obs, ok
}

// LastAccepted returns when a tab last had an observation accepted; the
// zero time means never.
func (m *Merger) LastAccepted(tabID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen[tabID]
}

// ClearTab drops all merge state for a closed tab.
func (m *Merger) ClearTab(tabID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, tabID)
	delete(m.lastSeen, tabID)
	for key := range m.lastSig {
		if len(key) > len(tabID) && key[:len(tabID)] == tabID && key[len(tabID)] == '|' {
			delete(m.lastSig, key)
		}
	}
}
