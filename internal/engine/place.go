package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/geo"
)

// ErrPlacementFailed means all three placement tiers failed.
var ErrPlacementFailed = errors.New("could not place guess marker")

// Placer drops the guess marker on the in-page map. Three tiers, tried in
// order: the map framework's own click handler dug out of its rendering
// tree, the location search box, and finally a raw projected click.
type Placer struct {
	tab *browser.Tab
	sel *config.SelectorTable
	log zerolog.Logger

	// MoveThreshold is the marker displacement (degrees) above which a
	// search-box placement counts as successful.
	MoveThreshold float64
}

// NewPlacer creates a placer for one tab.
func NewPlacer(tab *browser.Tab, sel *config.SelectorTable, log zerolog.Logger) *Placer {
	return &Placer{
		tab:           tab,
		sel:           sel,
		log:           log,
		MoveThreshold: config.GetFloat("engine.markerMoveThreshold"),
	}
}

// internalClickJS walks the guess map's rendering-tree internals looking
// for a click handler to invoke directly with the target coordinate. The
// framework stores props under per-build mangled keys, hence the prefix
// scan. Fastest tier when it works, gone without warning when the page
// updates.
const internalClickJS = `
((lat, lng, containers) => {
  let root = null;
  for (const sel of containers) {
    root = document.querySelector(sel);
    if (root) break;
  }
  if (!root) return false;

  const queue = [root];
  let seen = 0;
  while (queue.length && seen < 4000) {
    const el = queue.shift();
    seen++;
    for (const key of Object.keys(el)) {
      if (!key.startsWith("__reactProps$") && !key.startsWith("__reactEventHandlers$")) continue;
      const props = el[key];
      const handler = props && (props.onMapClick || props.onClick);
      if (typeof handler === "function") {
        try {
          handler({ latLng: { lat: () => lat, lng: () => lng } });
          return true;
        } catch (e) {}
      }
    }
    for (const child of el.children || []) queue.push(child);
  }
  return false;
})(%f, %f, %s)
`

// Place puts the guess marker at (lat, lon).
func (p *Placer) Place(ctx context.Context, lat, lon float64) error {
	sel := p.sel.Current()

	ok, err := p.placeInternal(ctx, lat, lon, sel)
	if err == nil && ok {
		p.log.Debug().Msg("guess placed via internal handler")
		return nil
	}

	ok, err = p.placeBySearch(ctx, lat, lon, sel)
	if err == nil && ok {
		p.log.Debug().Msg("guess placed via search input")
		return nil
	}

	if err := p.placeByProjection(ctx, lat, lon, sel); err != nil {
		return fmt.Errorf("%w: %v", ErrPlacementFailed, err)
	}
	p.log.Debug().Msg("guess placed via projected click")
	return nil
}

// PlaceCenter clicks the middle of the guess map. Scrape mode does not
// need an accurate guess, only a completed round.
func (p *Placer) PlaceCenter(ctx context.Context) error {
	sel := p.sel.Current()
	rect, ok, err := p.tab.ElementRect(ctx, sel.GuessMap.Container...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: guess map not visible", ErrPlacementFailed)
	}
	return p.tab.ClickXY(ctx, rect.X+rect.Width/2, rect.Y+rect.Height/2)
}

func (p *Placer) placeInternal(ctx context.Context, lat, lon float64, sel config.Selectors) (bool, error) {
	containers, err := json.Marshal(sel.GuessMap.Container)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(internalClickJS, lat, lon, containers)
	var ok bool
	if err := p.tab.Eval(ctx, js, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *Placer) placeBySearch(ctx context.Context, lat, lon float64, sel config.Selectors) (bool, error) {
	before, hadBefore := p.guessMarkerPosition(ctx)

	var input string
	for _, s := range sel.GuessMap.SearchInput {
		rect, ok, err := p.tab.ElementRect(ctx, s)
		if err != nil {
			return false, err
		}
		if ok && rect.Width > 0 {
			input = s
			break
		}
	}
	if input == "" {
		return false, nil
	}

	query := fmt.Sprintf("%.6f, %.6f", lat, lon)
	if err := p.tab.TypeInto(ctx, input, query); err != nil {
		return false, err
	}
	if err := p.tab.PressEnter(ctx); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(800 * time.Millisecond):
	}

	after, hasAfter := p.guessMarkerPosition(ctx)
	if !hasAfter {
		return false, nil
	}
	if !hadBefore {
		return true, nil
	}
	moved := math.Abs(after.Lat-before.Lat) > p.MoveThreshold ||
		math.Abs(after.Lon-before.Lon) > p.MoveThreshold
	return moved, nil
}

func (p *Placer) placeByProjection(ctx context.Context, lat, lon float64, sel config.Selectors) error {
	rect, ok, err := p.tab.ElementRect(ctx, sel.GuessMap.Container...)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("guess map not visible")
	}
	x, y := geo.ProjectToViewport(lat, lon, rect.Width, rect.Height)
	return p.tab.ClickXY(ctx, rect.X+x, rect.Y+y)
}

func (p *Placer) guessMarkerPosition(ctx context.Context) (Marker, bool) {
	markers, err := ReadMarkers(ctx, p.tab)
	if err != nil {
		return Marker{}, false
	}
	for _, m := range markers {
		if m.Scope == ScopeGuessMap {
			return m, true
		}
	}
	return Marker{}, false
}
