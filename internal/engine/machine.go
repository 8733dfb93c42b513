package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/capture"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/status"
)

var (
	// ErrSceneTimeout means no usable panorama surface appeared in time.
	ErrSceneTimeout = errors.New("timed out waiting for panorama scene")

	// ErrTargetLost means the browser tab is gone and the run cannot
	// continue against it.
	ErrTargetLost = errors.New("browser target lost")
)

// Machine executes the per-round automation steps against one tab. The
// two drivers compose these steps differently; the steps themselves are
// mode-agnostic.
type Machine struct {
	AC     *Context
	Merger *capture.Merger
	Placer *Placer
	Sel    *config.SelectorTable
	Hub    *status.Hub
	Frames FrameCheck
	Log    zerolog.Logger

	SceneTimeout  time.Duration
	CoordSettle   time.Duration
	ResultTimeout time.Duration
	SubmitTimeout time.Duration
}

func (m *Machine) publish(phase Phase, detail string) {
	m.AC.setPhase(phase)
	if m.Hub != nil {
		m.Hub.Publish(status.Event{
			Type:      status.EventPhase,
			TabID:     m.AC.Tab.ID(),
			SessionID: m.AC.SessionID,
			Phase:     string(phase),
			Round:     m.AC.CurrentRound(),
			Detail:    detail,
		})
	}
}

// WaitForScene polls for a sufficiently large rendering surface. Timing
// out is surfaced to the caller; continuing against a stale scene would
// just produce garbage guesses silently.
func (m *Machine) WaitForScene(ctx context.Context) error {
	m.publish(PhaseWaitingForScene, "")
	sel := m.Sel.Current()

	deadline := time.Now().Add(m.SceneTimeout)
	for {
		if m.AC.Tab.Context().Err() != nil {
			return ErrTargetLost
		}
		rect, ok, err := m.AC.Tab.ElementRect(ctx, sel.Scene.Canvas...)
		if err == nil && ok &&
			rect.Width >= float64(sel.Scene.MinWidth) &&
			rect.Height >= float64(sel.Scene.MinHeight) {
			m.AC.MarkSceneChange()
			return nil
		}
		if time.Now().After(deadline) {
			return ErrSceneTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
	}
}

// AwaitCoordinates gives the capture channels a short settle window to
// deliver an observation for the new scene, then returns whatever is
// cached plus the consecutive count of cycles with no coordinate at all.
// A nil return means no ground truth; the round proceeds anyway, the
// guess will just be wrong rather than the loop stuck.
func (m *Machine) AwaitCoordinates(ctx context.Context) (*geo.Observation, int) {
	m.publish(PhaseCoordinatesPending, "")
	select {
	case <-ctx.Done():
		return nil, 0
	case <-time.After(m.CoordSettle):
	}

	obs, ok := m.Merger.Latest(m.AC.Tab.ID())
	if !ok {
		return nil, m.AC.NoteCoordinateMissing()
	}
	m.AC.NoteCoordinateSeen()
	if m.Hub != nil {
		m.Hub.Publish(status.Event{
			Type:      status.EventCoordinate,
			TabID:     m.AC.Tab.ID(),
			SessionID: m.AC.SessionID,
			Round:     m.AC.CurrentRound(),
			Lat:       obs.Lat,
			Lon:       obs.Lon,
		})
	}
	return &obs, 0
}

// CaptureFrame screenshots the panorama and validates it. Returns the
// frame plus the current consecutive-duplicate count; a duplicate is not
// an error here, tolerating a short run of them is the supervisor's call.
func (m *Machine) CaptureFrame(ctx context.Context) ([]byte, int, error) {
	m.publish(PhaseImageCaptured, "")

	buf, err := m.AC.Tab.CaptureScreenshot(ctx)
	if err != nil {
		if m.AC.Tab.Context().Err() != nil {
			return nil, 0, ErrTargetLost
		}
		return nil, 0, fmt.Errorf("screenshot failed: %w", err)
	}
	if err := m.Frames.Validate(buf); err != nil {
		return nil, 0, err
	}

	dupRun := m.AC.NoteFrame(m.Frames.Hash(buf))
	if dupRun == 0 {
		m.AC.MarkSceneChange()
	}
	return buf, dupRun, nil
}

// PlaceGuess drops the marker at the given coordinate.
func (m *Machine) PlaceGuess(ctx context.Context, lat, lon float64) error {
	m.publish(PhaseGuessPlaced, "")
	return m.Placer.Place(ctx, lat, lon)
}

// PlaceCenterGuess drops a throwaway center-map marker.
func (m *Machine) PlaceCenterGuess(ctx context.Context) error {
	m.publish(PhaseGuessPlaced, "center")
	return m.Placer.PlaceCenter(ctx)
}

// SubmitGuess clicks the submit control, waiting for it to enable.
func (m *Machine) SubmitGuess(ctx context.Context) error {
	m.publish(PhaseGuessSubmitted, "")
	sel := m.Sel.Current()
	return WaitAndClickControl(ctx, m.AC.Tab, sel.Submit, m.SubmitTimeout)
}

// AwaitResult waits for the result panel and extracts the actual-vs-guess
// markers from it. truth feeds the distance tiebreak in classification.
func (m *Machine) AwaitResult(ctx context.Context, truth *geo.Observation) (*RoundResult, error) {
	m.publish(PhaseResultPending, "")
	sel := m.Sel.Current()

	deadline := time.Now().Add(m.ResultTimeout)
	for {
		_, ok, err := m.AC.Tab.ElementRect(ctx, sel.Result.Panel...)
		if err != nil {
			if m.AC.Tab.Context().Err() != nil {
				return nil, ErrTargetLost
			}
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for result panel")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(400 * time.Millisecond):
		}
	}

	m.publish(PhaseResultCaptured, "")
	markers, err := ReadMarkers(ctx, m.AC.Tab)
	if err != nil {
		m.Log.Warn().Err(err).Msg("marker readback failed")
		return nil, nil
	}
	var panelMarkers []Marker
	for _, mk := range markers {
		if mk.Scope == ScopeResultMap {
			panelMarkers = append(panelMarkers, mk)
		}
	}
	if len(panelMarkers) == 0 {
		panelMarkers = markers
	}
	res, ok := ClassifyResult(panelMarkers, truth)
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// pageScoreJS pulls the round score from the page's embedded data when the
// result panel exposes it.
const pageScoreJS = `
(() => {
  const el = document.querySelector("[data-qa='points-value'], .round-score, [class*='points_points']");
  if (!el) return -1;
  const n = parseInt(el.textContent.replace(/[^0-9]/g, ""), 10);
  return isNaN(n) ? -1 : n;
})()
`

// ReadRoundScore best-effort reads the displayed score, -1 when absent.
func (m *Machine) ReadRoundScore(ctx context.Context) int {
	var score int
	if err := m.AC.Tab.Eval(ctx, pageScoreJS, &score); err != nil {
		return -1
	}
	return score
}

// pageCountryJS reads a country label from the result panel when present.
const pageCountryJS = `
(() => {
  const el = document.querySelector("[data-qa='country-name'], [class*='result-layout_country']");
  return el ? el.textContent.trim() : "";
})()
`

// ReadRoundCountry best-effort reads the result panel's country label.
func (m *Machine) ReadRoundCountry(ctx context.Context) string {
	var name string
	if err := m.AC.Tab.Eval(ctx, pageCountryJS, &name); err != nil {
		return ""
	}
	return name
}

// Transition moves to the next round, or restarts the game after the
// final round. gameOver reports whether the round counter wrapped.
func (m *Machine) Transition(ctx context.Context, retries int) (gameOver bool, err error) {
	m.publish(PhaseTransitioning, "")
	sel := m.Sel.Current()

	// View-results is optional; some layouts go straight to next-round.
	if err := ClickControl(ctx, m.AC.Tab, sel.Result.ViewResults); err != nil &&
		!errors.Is(err, ErrControlNotFound) {
		return false, err
	}

	gameOver = m.AC.AdvanceRound()
	if !gameOver {
		if err := WaitAndClickControl(ctx, m.AC.Tab, sel.NextRound, m.SubmitTimeout); err != nil {
			return false, fmt.Errorf("next-round control: %w", err)
		}
		return false, nil
	}

	// Game finished: bounded-retry play-again sequence. Exhausting the
	// retries logs a warning but leaves the counters reset so the loop
	// keeps attempting from scratch.
	for attempt := 1; attempt <= retries; attempt++ {
		if err := WaitAndClickControl(ctx, m.AC.Tab, sel.PlayAgain, m.SubmitTimeout); err != nil {
			m.Log.Warn().Int("attempt", attempt).Err(err).Msg("play-again control not found")
		} else if err := m.WaitForScene(ctx); err == nil {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	m.Log.Warn().Msg("game restart retries exhausted, resetting counters anyway")
	m.AC.ResetRounds()
	return true, nil
}

// InstallInstrumentation injects the marker patch for this tab.
func (m *Machine) InstallInstrumentation(ctx context.Context) error {
	return InstallMarkerInstrumentation(ctx, m.AC.Tab, m.Sel.Current())
}
