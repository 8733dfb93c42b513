package engine

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/status"
	"github.com/taimoss/geoguessr-ai-1/internal/store"
)

// CoordinateFeed reports when a tab last delivered an accepted
// observation. Satisfied by capture.Merger.
type CoordinateFeed interface {
	LastAccepted(tabID string) time.Time
}

// CaptureReconnector restarts a capture channel on a tab. Satisfied by
// capture.Inspector.
type CaptureReconnector interface {
	Reconnect(tab *browser.Tab) error
}

// Supervisor watches one tab's automation for stalls and heals them. It
// runs its checks at the top of every automation cycle, before any
// network work, so a detected stall preempts the rest of the cycle.
type Supervisor struct {
	AC        *Context
	Merger    CoordinateFeed
	Inspector CaptureReconnector
	Store     *store.Store
	Hub       *status.Hub
	Log       zerolog.Logger

	StuckTimeout      time.Duration
	DuplicateLimit    int
	StaleCoordTimeout time.Duration
	NullCoordLimit    int
	ReconnectSettle   time.Duration

	mu              sync.Mutex
	reconnectDone   bool
	keepAliveScript page.ScriptIdentifier
}

// CheckCycle runs the ordered stall checks. skip=true means the current
// automation cycle must be abandoned (a reload or reconnect is in
// flight).
func (s *Supervisor) CheckCycle(ctx context.Context) (skip bool) {
	if s.checkStuckPage(ctx) {
		return true
	}
	return s.checkStaleCoordinates(ctx)
}

// NoteDuplicateRun reports a consecutive-duplicate frame count from the
// capture step. Past the limit it is treated as a stuck-page signal.
func (s *Supervisor) NoteDuplicateRun(ctx context.Context, run int) (skip bool) {
	if run <= s.DuplicateLimit {
		return false
	}
	s.Log.Warn().Int("duplicates", run).Msg("duplicate frame limit exceeded, forcing reload")
	return s.forceReload(ctx, "duplicate frames")
}

// NoteMissingCoordinates reports consecutive cycles that completed with no
// coordinate at all. Past the limit the inspector is reconnected and the
// cycle skipped; submitting a guess with no ground truth helps nobody.
func (s *Supervisor) NoteMissingCoordinates(ctx context.Context, run int) (skip bool) {
	if run < s.NullCoordLimit {
		return false
	}
	s.Log.Warn().Int("cycles", run).Msg("no coordinates arriving, reconnecting capture")
	s.reconnect(ctx, "null coordinates")
	return true
}

// ObservationAccepted re-arms the reconnect trigger; counters reset when
// fresh data flows again.
func (s *Supervisor) ObservationAccepted() {
	s.mu.Lock()
	s.reconnectDone = false
	s.mu.Unlock()
	s.AC.NoteCoordinateSeen()
}

func (s *Supervisor) checkStuckPage(ctx context.Context) bool {
	idle := s.AC.SinceSceneChange()
	if idle < s.StuckTimeout {
		return false
	}
	if !s.AC.TryMarkStuckReload() {
		// This stuck episode already got its one reload.
		return false
	}
	s.Log.Warn().Dur("idle", idle).Msg("page stuck, reloading")
	return s.forceReload(ctx, "stuck page")
}

func (s *Supervisor) checkStaleCoordinates(ctx context.Context) bool {
	last := s.Merger.LastAccepted(s.AC.Tab.ID())
	if last.IsZero() || time.Since(last) < s.StaleCoordTimeout {
		return false
	}
	s.mu.Lock()
	done := s.reconnectDone
	s.reconnectDone = true
	s.mu.Unlock()
	if done {
		// Already reconnected for this stale episode; wait for data.
		return false
	}
	s.Log.Warn().Time("lastAccepted", last).Msg("coordinate feed stale, reconnecting capture")
	s.reconnect(ctx, "stale coordinates")
	return true
}

func (s *Supervisor) forceReload(ctx context.Context, reason string) bool {
	// Persist the resume flag first: the reloaded page must rejoin the
	// loop without operator help.
	if s.Store != nil {
		err := s.Store.SaveTabSession(store.TabSession{
			TabID:         s.AC.Tab.ID(),
			InstanceToken: s.AC.InstanceToken,
			ResumePending: true,
			SessionID:     s.AC.SessionID,
			RoundIndex:    s.AC.CurrentRound(),
		})
		if err != nil {
			s.Log.Warn().Err(err).Msg("failed to persist resume flag")
		}
	}
	s.publishSupervisor(reason + ": reloading page")

	if err := s.AC.Tab.Reload(ctx); err != nil {
		s.Log.Error().Err(err).Msg("forced reload failed")
		return true
	}
	s.AC.MarkSceneChange()
	return true
}

func (s *Supervisor) reconnect(ctx context.Context, reason string) {
	s.publishSupervisor(reason + ": reconnecting inspector")
	if s.Inspector != nil {
		if err := s.Inspector.Reconnect(s.AC.Tab); err != nil {
			s.Log.Warn().Err(err).Msg("inspector reconnect failed")
		}
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.ReconnectSettle):
	}
}

func (s *Supervisor) publishSupervisor(detail string) {
	if s.Hub == nil {
		return
	}
	s.Hub.Publish(status.Event{
		Type:      status.EventSupervisor,
		TabID:     s.AC.Tab.ID(),
		SessionID: s.AC.SessionID,
		Round:     s.AC.CurrentRound(),
		Detail:    detail,
	})
}

// keepAliveJS plays an inaudible tone and requests a screen wake lock so
// the browser never throttles the tab while automation runs. Throttling
// shows up as fake stuck-page signals or real stalls.
const keepAliveJS = `
(() => {
  if (window.__geoaiKeepAlive) return;
  const state = {};
  try {
    const ctx = new (window.AudioContext || window.webkitAudioContext)();
    const osc = ctx.createOscillator();
    const gain = ctx.createGain();
    gain.gain.value = 0.0001;
    osc.connect(gain);
    gain.connect(ctx.destination);
    osc.start();
    state.audio = ctx;
  } catch (e) {}
  if (navigator.wakeLock && navigator.wakeLock.request) {
    navigator.wakeLock.request("screen").then((l) => { state.lock = l; }).catch(() => {});
  }
  window.__geoaiKeepAlive = state;
})();
`

const keepAliveTeardownJS = `
(() => {
  const state = window.__geoaiKeepAlive;
  if (!state) return;
  if (state.audio) { try { state.audio.close(); } catch (e) {} }
  if (state.lock) { try { state.lock.release(); } catch (e) {} }
  delete window.__geoaiKeepAlive;
})();
`

// StartKeepAlive arms the tab keep-alive measures, on the live document
// and on every future one so a forced reload re-arms them.
func (s *Supervisor) StartKeepAlive(ctx context.Context) {
	err := s.AC.Tab.RunAction(ctx, func(ctx context.Context) error {
		id, err := page.AddScriptToEvaluateOnNewDocument(keepAliveJS).Do(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.keepAliveScript = id
		s.mu.Unlock()
		_, _, err = runtime.Evaluate(keepAliveJS).Do(ctx)
		return err
	})
	if err != nil {
		s.Log.Debug().Err(err).Msg("keep-alive install failed")
	}
}

// StopKeepAlive tears the keep-alive measures down when automation stops.
func (s *Supervisor) StopKeepAlive(ctx context.Context) {
	s.mu.Lock()
	id := s.keepAliveScript
	s.keepAliveScript = ""
	s.mu.Unlock()

	err := s.AC.Tab.RunAction(ctx, func(ctx context.Context) error {
		if id != "" {
			if err := page.RemoveScriptToEvaluateOnNewDocument(id).Do(ctx); err != nil {
				return err
			}
		}
		_, _, err := runtime.Evaluate(keepAliveTeardownJS).Do(ctx)
		return err
	})
	if err != nil {
		s.Log.Debug().Err(err).Msg("keep-alive teardown failed")
	}
}
