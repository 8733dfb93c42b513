package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

// The page-context hook runs in the page's own realm, where the page's
// fetch/XHR references live. It must stay transparent: the page gets the
// exact response it asked for, and only a clone is read.

const hookBinding = "__geoaiNetRelay"

// hookScript wraps window.fetch and XMLHttpRequest before any page script
// runs. Bodies of matching responses are relayed through the CDP binding
// base64-encoded so multi-byte text survives the string transport.
const hookScript = `(() => {
	const PATTERN = %q;
	const relay = (url, body) => {
		try {
			window.%s(JSON.stringify({url: url, body: btoa(unescape(encodeURIComponent(body)))}));
		} catch (e) { /* binding gone, nothing to do in-page */ }
	};

	const origFetch = window.fetch;
	window.fetch = function(...args) {
		const p = origFetch.apply(this, args);
		try {
			const url = (args[0] && args[0].url) || String(args[0] || '');
			if (url.indexOf(PATTERN) !== -1) {
				p.then(resp => {
					resp.clone().text().then(body => relay(url, body)).catch(() => {});
					return resp;
				}).catch(() => {});
			}
		} catch (e) { /* never disturb the page's own call */ }
		return p;
	};

	const origOpen = XMLHttpRequest.prototype.open;
	const origSend = XMLHttpRequest.prototype.send;
	XMLHttpRequest.prototype.open = function(method, url, ...rest) {
		this.__geoaiURL = String(url || '');
		return origOpen.call(this, method, url, ...rest);
	};
	XMLHttpRequest.prototype.send = function(...args) {
		if (this.__geoaiURL && this.__geoaiURL.indexOf(PATTERN) !== -1) {
			this.addEventListener('load', () => {
				try { relay(this.__geoaiURL, this.responseText); } catch (e) {}
			});
		}
		return origSend.apply(this, args);
	};
})();`

// PageHook installs the in-page interception layer on one tab and feeds
// extracted coordinates into the merger under the page_hook source.
type PageHook struct {
	merger *Merger
}

// NewPageHook creates the hook installer for a merger.
func NewPageHook(merger *Merger) *PageHook {
	return &PageHook{merger: merger}
}

// Install registers the binding, injects the wrapper script into every new
// document, and applies it to the already-loaded document as well. The
// returned error means the page will produce no page-channel observations;
// the inspector channel is unaffected.
func (h *PageHook) Install(ctx context.Context, tab *browser.Tab, pattern string) error {
	log := logging.Component("pagehook")

	err := tab.RunAction(ctx, func(ctx context.Context) error {
		if err := runtime.AddBinding(hookBinding).Do(ctx); err != nil {
			return fmt.Errorf("failed to add relay binding: %w", err)
		}
		script := fmt.Sprintf(hookScript, pattern, hookBinding)
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("failed to register hook script: %w", err)
		}
		// The tab usually has a document loaded already; hook it too.
		_, exp, err := runtime.Evaluate(script).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply hook to live document: %w", err)
		}
		if exp != nil {
			return fmt.Errorf("hook script rejected by page: %s", exp.Text)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tabID := tab.ID()
	chromedp.ListenTarget(tab.Context(), func(ev interface{}) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != hookBinding {
			return
		}
		var payload struct {
			URL  string `json:"url"`
			Body string `json:"body"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			log.Debug().Err(err).Msg("malformed relay payload")
			return
		}
		h.handleBody(tabID, payload.URL, payload.Body)
	})

	log.Info().Str("tab", tabID).Str("pattern", pattern).Msg("page hook installed")
	return nil
}

// handleBody parses one relayed response body. This channel uses only the
// fixed-index extraction; when the service shifts its array shape the
// inspector's deep search still catches it.
func (h *PageHook) handleBody(tabID, url, encoded string) {
	log := logging.Component("pagehook")

	body := geo.DecodeBody(encoded, true)
	parsed, err := geo.ParsePayload(body)
	if err != nil {
		log.Debug().Err(err).Str("url", truncate(url, 120)).Msg("unparseable response body")
		return
	}
	lat, lon, err := geo.ExtractFixed(parsed)
	if err != nil {
		log.Debug().Str("url", truncate(url, 120)).Msg("fixed-index extraction missed")
		return
	}

	obs := geo.Observation{
		Lat:        lat,
		Lon:        lon,
		Source:     geo.SourcePageHook,
		CapturedAt: time.Now(),
		TabID:      tabID,
	}
	if _, err := h.merger.Apply(obs, ChannelPageHook); err != nil {
		log.Warn().Err(err).Msg("page-hook observation rejected")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
