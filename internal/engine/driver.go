package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/taimoss/geoguessr-ai-1/internal/backend"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/status"
	"github.com/taimoss/geoguessr-ai-1/internal/store"
)

// Driver runs the round state machine in a loop. The same machinery backs
// both modes: auto-play (predict and guess for real) and scrape (center
// guesses, maximum throughput, runs until stopped).
type Driver struct {
	Machine    *Machine
	Supervisor *Supervisor
	Backend    *backend.Client
	Store      *store.Store
	Hub        *status.Hub
	Sel        *config.SelectorTable
	Log        zerolog.Logger

	TransitionRetries int
	ScanInterval      time.Duration
}

// ResumeIfPending adopts a persisted session after a supervisor-forced
// reload so the loop continues where it stopped instead of starting a new
// session.
func (d *Driver) ResumeIfPending(ctx context.Context) {
	if d.Store == nil {
		return
	}
	ac := d.Machine.AC
	ts, ok, err := d.Store.TabSessionFor(ac.Tab.ID())
	if err != nil {
		d.Log.Warn().Err(err).Msg("failed to read resume state")
		return
	}
	if !ok || !ts.ResumePending {
		return
	}
	ac.AdoptSession(ts.SessionID, ts.RoundIndex)
	if err := d.Store.SetResumePending(ac.Tab.ID(), false); err != nil {
		d.Log.Warn().Err(err).Msg("failed to clear resume flag")
	}
	d.Log.Info().Str("session", ts.SessionID).Int("round", ts.RoundIndex).Msg("resuming after reload")
}

// AutoPlay plays games until ctx is cancelled, or for `games` games when
// games > 0. Each round asks the backend for a prediction, guesses it,
// and logs the round.
func (d *Driver) AutoPlay(ctx context.Context, games int) error {
	return d.loop(ctx, games, true)
}

// Scrape runs rounds indefinitely with throwaway guesses, feeding frames
// and ground truth to the backend. A secondary fast-path scan loop clicks
// transition controls the moment they appear so the main loop's bounded
// waits never set the pace.
func (d *Driver) Scrape(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.loop(gctx, 0, false)
	})
	g.Go(func() error {
		d.fastPathScan(gctx)
		return nil
	})
	return g.Wait()
}

func (d *Driver) loop(ctx context.Context, games int, autoPlay bool) error {
	ac := d.Machine.AC

	if err := d.Machine.InstallInstrumentation(ctx); err != nil {
		d.Log.Warn().Err(err).Msg("marker instrumentation failed, result extraction degraded")
	}
	d.ResumeIfPending(ctx)
	d.Supervisor.StartKeepAlive(ctx)
	defer d.Supervisor.StopKeepAlive(context.Background())

	gamesDone := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		gameOver, err := d.runRound(ctx, autoPlay)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrTargetLost) {
				return err
			}
			// Round failures stay inside the loop; the next round
			// gets its chance.
			d.Log.Warn().Err(err).Int("round", ac.CurrentRound()).Msg("round failed")
			d.publishError(err)
		}
		if gameOver {
			gamesDone++
			d.Log.Info().Int("games", gamesDone).Msg("game completed")
			if games > 0 && gamesDone >= games {
				return nil
			}
		}
	}
}

func (d *Driver) runRound(ctx context.Context, autoPlay bool) (gameOver bool, err error) {
	m := d.Machine
	ac := m.AC

	if d.Supervisor.CheckCycle(ctx) {
		return false, nil
	}

	if err := m.WaitForScene(ctx); err != nil {
		if errors.Is(err, ErrSceneTimeout) {
			d.Log.Warn().Msg("scene never appeared, retrying")
			return false, nil
		}
		return false, err
	}

	obs, missingRun := m.AwaitCoordinates(ctx)
	if obs == nil {
		if d.Supervisor.NoteMissingCoordinates(ctx, missingRun) {
			return false, nil
		}
	}

	frame, dupRun, err := m.CaptureFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrFrameDark) || errors.Is(err, ErrFrameFlat) || errors.Is(err, ErrFrameShort) {
			d.Log.Debug().Err(err).Msg("frame rejected, retrying")
			return false, nil
		}
		return false, err
	}
	if dupRun > 0 {
		if d.Supervisor.NoteDuplicateRun(ctx, dupRun) {
			return false, nil
		}
	}

	if obs != nil {
		capturedAt := obs.CapturedAt
		d.Backend.LogCoordinate(ctx, backend.CoordinateSample{
			Lat:        obs.Lat,
			Lon:        obs.Lon,
			Source:     string(obs.Source),
			CapturedAt: &capturedAt,
			SessionID:  ac.SessionID,
			RoundID:    ac.RoundID(),
			RoundIndex: ac.CurrentRound(),
		})
	}

	var pred *backend.Prediction
	if autoPlay {
		pred, err = d.Backend.Predict(ctx, backend.InferenceRequest{
			ImageBase64: base64.StdEncoding.EncodeToString(frame),
			SessionID:   ac.SessionID,
			RoundID:     ac.RoundID(),
		})
		if err != nil {
			d.Log.Warn().Err(err).Msg("prediction failed, guessing center")
		}
	} else {
		d.saveScreenshot(ctx, frame, obs)
	}

	if pred != nil {
		if err := m.PlaceGuess(ctx, pred.Lat, pred.Lon); err != nil {
			return false, err
		}
		if d.Hub != nil {
			d.Hub.Publish(status.Event{
				Type:      status.EventPrediction,
				TabID:     ac.Tab.ID(),
				SessionID: ac.SessionID,
				Round:     ac.CurrentRound(),
				Lat:       pred.Lat,
				Lon:       pred.Lon,
				Country:   pred.Country.ID,
			})
		}
	} else {
		if err := m.PlaceCenterGuess(ctx); err != nil {
			return false, err
		}
	}

	if err := m.SubmitGuess(ctx); err != nil {
		return false, err
	}

	result, err := m.AwaitResult(ctx, obs)
	if err != nil {
		return false, err
	}

	score := m.ReadRoundScore(ctx)
	d.logRound(ctx, autoPlay, obs, pred, result, score)

	if d.Hub != nil {
		d.Hub.Publish(status.Event{
			Type:      status.EventRound,
			TabID:     ac.Tab.ID(),
			SessionID: ac.SessionID,
			Round:     ac.CurrentRound(),
			Score:     score,
			Detail:    "round completed",
		})
	}

	return m.Transition(ctx, d.TransitionRetries)
}

func (d *Driver) saveScreenshot(ctx context.Context, frame []byte, obs *geo.Observation) {
	ac := d.Machine.AC
	meta := map[string]any{"round_index": ac.CurrentRound()}
	if obs != nil {
		meta["street_view"] = map[string]any{"lat": obs.Lat, "lon": obs.Lon}
	}
	_, err := d.Backend.SaveScreenshot(ctx, backend.ScreenshotRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(frame),
		SessionID:   ac.SessionID,
		RoundID:     ac.RoundID(),
		Metadata:    meta,
	})
	if err != nil && !errors.Is(err, backend.ErrScreenshotGone) {
		d.Log.Warn().Err(err).Msg("screenshot upload failed")
	}
}

func (d *Driver) logRound(ctx context.Context, autoPlay bool, obs *geo.Observation,
	pred *backend.Prediction, result *RoundResult, score int) {
	ac := d.Machine.AC

	if score < 0 {
		score = 0
	}

	gt := backend.GroundTruth{Country: "ZZ"}
	switch {
	case obs != nil:
		gt.Lat = obs.Lat
		gt.Lon = obs.Lon
	case result != nil:
		gt.Lat = result.Actual.Lat
		gt.Lon = result.Actual.Lon
	}
	if name := d.Machine.ReadRoundCountry(ctx); name != "" {
		if code := geo.CountryCode(name); code != "" {
			gt.Country = code
		}
	}

	rec := store.RoundRecord{
		RoundID:    ac.SessionID + "-" + ac.RoundID(),
		SessionID:  ac.SessionID,
		RoundIndex: ac.CurrentRound(),
		GTLat:      gt.Lat,
		GTLon:      gt.Lon,
		GTCountry:  gt.Country,
		Score:      score,
	}

	if autoPlay && pred != nil {
		rec.PredLat = pred.Lat
		rec.PredLon = pred.Lon
		rec.PredCountry = pred.Country.ID
		rec.DistanceKm = geo.HaversineKm(gt.Lat, gt.Lon, pred.Lat, pred.Lon)

		res, err := d.Backend.LogRound(ctx, backend.RoundLog{
			SessionID:      ac.SessionID,
			RoundID:        ac.SessionID + "-" + ac.RoundID(),
			RoundIndex:     ac.CurrentRound(),
			GroundTruth:    gt,
			Prediction:     *pred,
			Score:          score,
			ScreenshotPath: pred.ScreenshotPath,
		})
		if err != nil {
			d.Log.Warn().Err(err).Msg("round log failed")
		} else if res.DistanceKm != nil {
			rec.DistanceKm = *res.DistanceKm
		}
	}

	if d.Store != nil {
		if err := d.Store.SaveRound(rec); err != nil {
			d.Log.Warn().Err(err).Msg("round journal write failed")
		}
	}
}

// fastPathScan opportunistically clicks transition controls the moment
// they render, independent of the main loop's own waits.
func (d *Driver) fastPathScan(ctx context.Context) {
	ticker := time.NewTicker(d.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sel := d.Sel.Current()
		for _, cs := range []config.ControlSelectors{sel.PlayAgain, sel.Result.ViewResults} {
			if err := ClickControl(ctx, d.Machine.AC.Tab, cs); err == nil {
				d.Log.Debug().Msg("fast-path clicked transition control")
				break
			}
		}
	}
}

func (d *Driver) publishError(err error) {
	if d.Hub == nil {
		return
	}
	ac := d.Machine.AC
	d.Hub.Publish(status.Event{
		Type:      status.EventError,
		TabID:     ac.Tab.ID(),
		SessionID: ac.SessionID,
		Round:     ac.CurrentRound(),
		Detail:    err.Error(),
	})
}
