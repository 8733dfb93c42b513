package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
)

// MarkerKind classifies what a map marker represents.
type MarkerKind string

const (
	MarkerGuess   MarkerKind = "guess"
	MarkerResult  MarkerKind = "result"
	MarkerUnknown MarkerKind = "unknown"
)

// MarkerScope identifies which map instance owns a marker.
type MarkerScope string

const (
	ScopeGuessMap  MarkerScope = "guess_map"
	ScopeResultMap MarkerScope = "result_map"
)

// Marker is one annotated map marker read back from the page.
type Marker struct {
	Lat   float64     `json:"lat"`
	Lon   float64     `json:"lon"`
	Kind  MarkerKind  `json:"kind"`
	Scope MarkerScope `json:"scope"`
}

// markerScript patches the map library's marker position update at the
// prototype level. Every position set writes the coordinate onto the
// marker's element as data attributes, tags it with an inferred kind and
// scope, and dispatches a DOM event so listeners need not poll. The page's
// own marker behavior is untouched.
const markerScript = `
(() => {
  if (window.__geoaiMarkersPatched) return;
  const GUESS_CLASSES = %s;
  const RESULT_CLASSES = %s;
  const ARIA_RESULT = %s;

  function normalize(pos) {
    if (!pos) return null;
    let lat, lng;
    if (typeof pos.lat === "function") { lat = pos.lat(); lng = pos.lng(); }
    else if (typeof pos.lat === "number") { lat = pos.lat; lng = pos.lng; }
    else if (Array.isArray(pos) && pos.length >= 2) { lat = pos[0]; lng = pos[1]; }
    if (typeof lat !== "number" || typeof lng !== "number") return null;
    return { lat, lng };
  }

  function matchAny(hay, needles) {
    if (!hay) return false;
    const s = hay.toLowerCase();
    return needles.some((n) => s.indexOf(n.toLowerCase()) !== -1);
  }

  function classify(el) {
    let kind = "unknown";
    const own = el.className && el.className.baseVal !== undefined ? el.className.baseVal : el.className;
    const parent = el.parentElement ? el.parentElement.className : "";
    const aria = el.getAttribute && (el.getAttribute("aria-label") || "");
    if (matchAny(own, RESULT_CLASSES) || matchAny(parent, RESULT_CLASSES)) kind = "result";
    else if (matchAny(own, GUESS_CLASSES) || matchAny(parent, GUESS_CLASSES)) kind = "guess";
    else if (matchAny(aria, ARIA_RESULT)) kind = "result";

    let scope = "guess_map";
    let node = el;
    while (node && node !== document.body) {
      const cls = typeof node.className === "string" ? node.className : "";
      if (cls.indexOf("result") !== -1) { scope = "result_map"; break; }
      node = node.parentElement;
    }
    return { kind, scope };
  }

  function annotate(marker, pos) {
    const p = normalize(pos);
    if (!p) return;
    const el = marker.content || marker.element || (marker.getDiv && marker.getDiv());
    if (!el || !el.setAttribute) return;
    const c = classify(el);
    el.setAttribute("data-geoai-lat", String(p.lat));
    el.setAttribute("data-geoai-lon", String(p.lng));
    el.setAttribute("data-geoai-kind", c.kind);
    el.setAttribute("data-geoai-scope", c.scope);
    el.dispatchEvent(new CustomEvent("geoai:marker", {
      bubbles: true,
      detail: { lat: p.lat, lon: p.lng, kind: c.kind, scope: c.scope },
    }));
  }

  function patch() {
    const maps = window.google && window.google.maps;
    if (!maps) return false;
    if (maps.Marker && !maps.Marker.prototype.__geoaiPatched) {
      const orig = maps.Marker.prototype.setPosition;
      maps.Marker.prototype.setPosition = function (pos) {
        const r = orig.apply(this, arguments);
        try { annotate(this, pos); } catch (e) {}
        return r;
      };
      maps.Marker.prototype.__geoaiPatched = true;
    }
    const adv = maps.marker && maps.marker.AdvancedMarkerElement;
    if (adv && !adv.__geoaiPatched) {
      const desc = Object.getOwnPropertyDescriptor(adv.prototype, "position");
      if (desc && desc.set) {
        Object.defineProperty(adv.prototype, "position", {
          get: desc.get,
          set: function (pos) {
            desc.set.call(this, pos);
            try { annotate(this, pos); } catch (e) {}
          },
        });
      }
      adv.__geoaiPatched = true;
    }
    return true;
  }

  if (!patch()) {
    const timer = setInterval(() => { if (patch()) clearInterval(timer); }, 500);
  }
  window.__geoaiMarkersPatched = true;
})();
`

// collectMarkersJS reads back every annotated marker currently in the DOM.
const collectMarkersJS = `
(() => {
  const out = [];
  document.querySelectorAll("[data-geoai-lat]").forEach((el) => {
    const lat = parseFloat(el.getAttribute("data-geoai-lat"));
    const lon = parseFloat(el.getAttribute("data-geoai-lon"));
    if (isNaN(lat) || isNaN(lon)) return;
    out.push({
      lat, lon,
      kind: el.getAttribute("data-geoai-kind") || "unknown",
      scope: el.getAttribute("data-geoai-scope") || "guess_map",
    });
  });
  return JSON.stringify(out);
})()
`

// InstallMarkerInstrumentation injects the prototype patch into a tab. The
// script is also registered for every future document, so a forced reload
// re-applies it without help.
func InstallMarkerInstrumentation(ctx context.Context, tab *browser.Tab, sel config.Selectors) error {
	guess, _ := json.Marshal(sel.Markers.GuessClasses)
	result, _ := json.Marshal(sel.Markers.ResultClasses)
	aria, _ := json.Marshal(sel.Markers.AriaResultLabels)
	script := fmt.Sprintf(markerScript, guess, result, aria)

	return tab.RunAction(ctx, func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("failed to register marker script: %w", err)
		}
		_, exp, err := runtime.Evaluate(script).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply marker script: %w", err)
		}
		if exp != nil {
			return fmt.Errorf("marker script rejected by page: %s", exp.Text)
		}
		return nil
	})
}

// ReadMarkers returns every annotated marker on the page.
func ReadMarkers(ctx context.Context, tab *browser.Tab) ([]Marker, error) {
	var raw string
	if err := tab.Eval(ctx, collectMarkersJS, &raw); err != nil {
		return nil, err
	}
	var markers []Marker
	if err := json.Unmarshal([]byte(raw), &markers); err != nil {
		return nil, fmt.Errorf("failed to decode marker annotations: %w", err)
	}
	return markers, nil
}

// RoundResult is the actual-vs-guess pair extracted from a result panel.
type RoundResult struct {
	Actual Marker
	Guess  *Marker
}

// ClassifyResult picks the actual-location and guess markers from a result
// panel's annotated markers. truth, when non-nil, is the trusted
// ground-truth reference used as a distance tiebreak. The fallback ladder
// exists because none of the page's class names are a stable contract.
func ClassifyResult(markers []Marker, truth *geo.Observation) (RoundResult, bool) {
	if len(markers) == 0 {
		return RoundResult{}, false
	}

	actualIdx := -1
	for i, m := range markers {
		if m.Kind == MarkerResult {
			actualIdx = i
			break
		}
	}
	if actualIdx < 0 && truth != nil {
		best := -1.0
		for i, m := range markers {
			d := geo.HaversineKm(truth.Lat, truth.Lon, m.Lat, m.Lon)
			if best < 0 || d < best {
				best = d
				actualIdx = i
			}
		}
	}
	if actualIdx < 0 {
		actualIdx = 0
	}

	res := RoundResult{Actual: markers[actualIdx]}
	for i, m := range markers {
		if i == actualIdx {
			continue
		}
		if m.Kind == MarkerGuess {
			res.Guess = &markers[i]
			return res, true
		}
	}
	for i := range markers {
		if i != actualIdx {
			res.Guess = &markers[i]
			break
		}
	}
	return res, true
}
