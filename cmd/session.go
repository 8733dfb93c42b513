package cmd

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/backend"
	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/capture"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/engine"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/logging"
	"github.com/taimoss/geoguessr-ai-1/internal/status"
	"github.com/taimoss/geoguessr-ai-1/internal/store"
)

// session wires one browser tab to the full capture and automation stack.
type session struct {
	mgr     *browser.Manager
	tab     *browser.Tab
	st      *store.Store
	hub     *status.Hub
	driver  *engine.Driver
	selStop func()
	log     zerolog.Logger
}

func newSession(ctx context.Context) (*session, error) {
	log := logging.Component("session")

	selectors, err := config.LoadSelectors(dataDir)
	if err != nil {
		return nil, err
	}
	selStop, err := selectors.Watch()
	if err != nil {
		log.Warn().Err(err).Msg("selector hot reload unavailable")
		selStop = func() {}
	}

	st, err := store.Open(filepath.Join(dataDir, "geoai.db"))
	if err != nil {
		selStop()
		return nil, err
	}

	remoteURL, _ := rootCmd.PersistentFlags().GetString("remote")
	mgr, err := browser.NewManager(ctx, browser.Options{
		Headless:  config.GetBool("chrome.headless"),
		DebugHost: config.GetString("chrome.debugHost"),
		DebugPort: config.GetInt("chrome.debugPort"),
		Width:     config.GetInt("chrome.windowWidth"),
		Height:    config.GetInt("chrome.windowHeight"),
		RemoteURL: remoteURL,
	})
	if err != nil {
		st.Close()
		selStop()
		return nil, err
	}

	tab, err := mgr.FirstTab(config.GetString("session.gameURL"))
	if err != nil {
		mgr.Close()
		st.Close()
		selStop()
		return nil, err
	}

	hub := status.NewHub()
	go func() {
		if err := hub.Serve(ctx, config.GetString("status.listenAddr")); err != nil {
			log.Warn().Err(err).Msg("status feed unavailable")
		}
	}()

	ac := engine.NewContext(tab, config.GetString("session.prefix"), config.GetInt("engine.roundsPerGame"))

	// The capture channels call back into the supervisor from chromedp's
	// event goroutines, so sup must be fully assigned before either
	// channel starts.
	var sup *engine.Supervisor
	merger := capture.NewMerger(st, func(_ geo.Observation, _ capture.Channel) {
		sup.ObservationAccepted()
	})

	pattern := config.GetString("capture.urlPattern")
	langs := config.GetStringSlice("capture.languagePriority")
	targetLen := config.GetInt("capture.placeTargetLen")

	inspector := capture.NewInspector(merger, pattern, langs, targetLen)

	sup = &engine.Supervisor{
		AC:                ac,
		Merger:            merger,
		Inspector:         inspector,
		Store:             st,
		Hub:               hub,
		Log:               logging.Component("supervisor"),
		StuckTimeout:      config.GetDuration("supervisor.stuckTimeout"),
		DuplicateLimit:    config.GetInt("supervisor.duplicateLimit"),
		StaleCoordTimeout: config.GetDuration("supervisor.staleCoordTimeout"),
		NullCoordLimit:    config.GetInt("supervisor.nullCoordLimit"),
		ReconnectSettle:   config.GetDuration("supervisor.reconnectSettle"),
	}

	hook := capture.NewPageHook(merger)
	if err := hook.Install(ctx, tab, pattern); err != nil {
		log.Warn().Err(err).Msg("page hook install failed, inspector channel only")
	}

	if err := inspector.StartCapture(tab); err != nil {
		if errors.Is(err, capture.ErrAttachDenied) {
			// Page-hook-only operation still works, just without the
			// privileged fallback channel.
			log.Warn().Err(err).Msg("inspector attach denied, page hook only")
		} else {
			log.Warn().Err(err).Msg("inspector start failed")
		}
	}

	client := backend.NewClient(
		config.GetString("backend.baseURL"),
		config.GetDuration("backend.timeout"),
	)

	machine := &engine.Machine{
		AC:            ac,
		Merger:        merger,
		Placer:        engine.NewPlacer(tab, selectors, logging.Component("placer")),
		Sel:           selectors,
		Hub:           hub,
		Log:           logging.Component("machine"),
		SceneTimeout:  config.GetDuration("engine.sceneTimeout"),
		CoordSettle:   config.GetDuration("engine.coordSettle"),
		ResultTimeout: config.GetDuration("engine.resultTimeout"),
		SubmitTimeout: config.GetDuration("engine.submitTimeout"),
		Frames: engine.FrameCheck{
			DarknessRatio:     config.GetFloat("image.darknessRatio"),
			DarknessThreshold: byte(config.GetInt("image.darknessThreshold")),
			MinBuckets:        config.GetInt("image.minBuckets"),
			SampleStride:      config.GetInt("image.sampleStride"),
		},
	}

	driver := &engine.Driver{
		Machine:           machine,
		Supervisor:        sup,
		Backend:           client,
		Store:             st,
		Hub:               hub,
		Sel:               selectors,
		Log:               logging.Component("driver"),
		TransitionRetries: config.GetInt("engine.transitionRetries"),
		ScanInterval:      config.GetDuration("engine.scanInterval"),
	}

	return &session{
		mgr:     mgr,
		tab:     tab,
		st:      st,
		hub:     hub,
		driver:  driver,
		selStop: selStop,
		log:     log,
	}, nil
}

func (s *session) Close() {
	s.selStop()
	s.mgr.Close()
	s.st.Close()
}
