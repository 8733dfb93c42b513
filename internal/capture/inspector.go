package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

// ErrAttachDenied is returned when the browser refuses Network-domain
// observation for a tab.
var ErrAttachDenied = errors.New("browser denied network capture for tab")

// Inspector is the privileged capture channel: it watches the tab at the
// protocol layer, below anything the page could intercept or spoof. It
// attaches to any number of tabs; each tab's state is fully independent.
type Inspector struct {
	merger  *Merger
	pattern string
	langs   []string
	target  int

	mu   sync.Mutex
	tabs map[string]*tabCapture

	log zerolog.Logger
}

// tabCapture is the per-tab inspector state. Detaching one tab must not
// disturb any other, so everything lives here rather than on Inspector.
type tabCapture struct {
	tab     *browser.Tab
	cancel  context.CancelFunc
	mu      sync.Mutex
	pending map[network.RequestID]string // request id -> url, awaiting body
}

// NewInspector creates the inspector. pattern is the target-service URL
// substring; langs and targetLen feed place-name candidate scoring.
func NewInspector(merger *Merger, pattern string, langs []string, targetLen int) *Inspector {
	return &Inspector{
		merger:  merger,
		pattern: pattern,
		langs:   langs,
		target:  targetLen,
		tabs:    make(map[string]*tabCapture),
		log:     logging.Component("inspector"),
	}
}

// StartCapture begins observing a tab's network traffic. Idempotent: a
// second call for an attached tab is a no-op. Other debugging sessions on
// the same tab coexist (the protocol multiplexes sessions), so shared
// attachment is success, not an error.
func (i *Inspector) StartCapture(tab *browser.Tab) error {
	i.mu.Lock()
	if _, ok := i.tabs[tab.ID()]; ok {
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	err := tab.RunAction(context.Background(), func(ctx context.Context) error {
		return network.Enable().Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttachDenied, err)
	}

	listenCtx, cancel := context.WithCancel(tab.Context())
	tc := &tabCapture{
		tab:     tab,
		cancel:  cancel,
		pending: make(map[network.RequestID]string),
	}

	i.mu.Lock()
	i.tabs[tab.ID()] = tc
	i.mu.Unlock()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !strings.Contains(e.Response.URL, i.pattern) {
				return
			}
			tc.mu.Lock()
			tc.pending[e.RequestID] = e.Response.URL
			tc.mu.Unlock()
		case *network.EventLoadingFinished:
			tc.mu.Lock()
			url, ok := tc.pending[e.RequestID]
			if ok {
				delete(tc.pending, e.RequestID)
			}
			tc.mu.Unlock()
			if ok {
				// Body fetch is out-of-band; never block the event
				// dispatcher on a protocol round-trip.
				go i.fetchAndExtract(tc, e.RequestID, url)
			}
		}
	})

	// Tab closure tears capture down on its own.
	go func() {
		<-tab.Done()
		i.StopCapture(tab.ID())
	}()

	i.log.Info().Str("tab", tab.ID()).Msg("network capture attached")
	return nil
}

// StopCapture detaches from a tab and clears all its state. No-op when the
// tab is not attached.
func (i *Inspector) StopCapture(tabID string) {
	i.mu.Lock()
	tc, ok := i.tabs[tabID]
	if ok {
		delete(i.tabs, tabID)
	}
	i.mu.Unlock()
	if !ok {
		return
	}
	tc.cancel()
	i.log.Info().Str("tab", tabID).Msg("network capture detached")
}

// Attached reports whether a tab currently has capture running.
func (i *Inspector) Attached(tabID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.tabs[tabID]
	return ok
}

// Reconnect force-detaches and reattaches one tab's capture, the
// supervisor's answer to a stale coordinate feed.
func (i *Inspector) Reconnect(tab *browser.Tab) error {
	i.StopCapture(tab.ID())
	return i.StartCapture(tab)
}

func (i *Inspector) fetchAndExtract(tc *tabCapture, id network.RequestID, url string) {
	var body []byte
	err := tc.tab.RunAction(context.Background(), func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	})
	if err != nil {
		// Bodies evaporate quickly once the browser is done with them;
		// a miss here just means waiting for the next response.
		i.log.Debug().Err(err).Str("url", truncate(url, 120)).Msg("response body unavailable")
		return
	}

	// The protocol layer has already undone any base64 transport encoding.
	parsed, err := geo.ParsePayload(string(body))
	if err != nil {
		i.log.Debug().Err(err).Str("url", truncate(url, 120)).Msg("unparseable response body")
		return
	}

	lat, lon, err := geo.DeepSearchCoords(parsed)
	if err != nil {
		return
	}

	obs := geo.Observation{
		Lat:        lat,
		Lon:        lon,
		Source:     geo.SourceDebugger,
		CapturedAt: time.Now(),
		TabID:      tc.tab.ID(),
	}
	if place := geo.DeepSearchPlace(parsed, i.langs, i.target); place != nil {
		obs.Place = place.Text
		obs.Language = place.Language
	}

	if _, err := i.merger.Apply(obs, ChannelInspector); err != nil {
		i.log.Warn().Err(err).Msg("inspector observation rejected")
	}
}
