package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
)

// ErrControlNotFound means every selector variant and every text-match
// fallback came up empty.
var ErrControlNotFound = errors.New("control not found")

const clickableQuery = `button, a, [role="button"]`

// ClickControl locates a control by its selector variants and clicks its
// center with a full pointer press-release sequence. When no selector
// matches, the rendered DOM is searched for a clickable element whose text
// matches one of the control's label strings.
func ClickControl(ctx context.Context, tab *browser.Tab, cs config.ControlSelectors) error {
	rect, ok, err := tab.ElementRect(ctx, cs.Selectors...)
	if err != nil {
		return err
	}
	if !ok {
		rect, ok, err = findByLabel(ctx, tab, cs.Labels)
		if err != nil {
			return err
		}
		if !ok {
			return ErrControlNotFound
		}
	}
	return tab.ClickXY(ctx, rect.X+rect.Width/2, rect.Y+rect.Height/2)
}

// WaitAndClickControl polls for the control until timeout, then clicks it.
// The target UI renders controls asynchronously and sometimes disabled;
// disabled elements are skipped until they come alive.
func WaitAndClickControl(ctx context.Context, tab *browser.Tab, cs config.ControlSelectors, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := clickIfEnabled(ctx, tab, cs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrControlNotFound) {
			return err
		}
		if time.Now().After(deadline) {
			return ErrControlNotFound
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func clickIfEnabled(ctx context.Context, tab *browser.Tab, cs config.ControlSelectors) error {
	for _, sel := range cs.Selectors {
		var enabled bool
		js := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			return !!el && !el.disabled && el.getAttribute("aria-disabled") !== "true";
		})()`, sel)
		if err := tab.Eval(ctx, js, &enabled); err != nil {
			return err
		}
		if !enabled {
			continue
		}
		rect, ok, err := tab.ElementRect(ctx, sel)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		return tab.ClickXY(ctx, rect.X+rect.Width/2, rect.Y+rect.Height/2)
	}

	rect, ok, err := findByLabel(ctx, tab, cs.Labels)
	if err != nil {
		return err
	}
	if !ok {
		return ErrControlNotFound
	}
	return tab.ClickXY(ctx, rect.X+rect.Width/2, rect.Y+rect.Height/2)
}

// findByLabel serializes the page and scans clickable elements for a text
// match against the label list. The matched element is addressed by its
// index in document order, which is stable between the serialized snapshot
// and the live DOM as long as the page does not mutate in between; a
// mismatch just means another poll cycle.
func findByLabel(ctx context.Context, tab *browser.Tab, labels []string) (browser.Rect, bool, error) {
	if len(labels) == 0 {
		return browser.Rect{}, false, nil
	}

	html, err := tab.OuterHTML(ctx)
	if err != nil {
		return browser.Rect{}, false, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return browser.Rect{}, false, fmt.Errorf("failed to parse page: %w", err)
	}

	matchIdx := -1
	doc.Find(clickableQuery).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if text == "" {
			return true
		}
		for _, label := range labels {
			if strings.Contains(text, strings.ToLower(label)) {
				matchIdx = i
				return false
			}
		}
		return true
	})
	if matchIdx < 0 {
		return browser.Rect{}, false, nil
	}

	js := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%q);
		if (%d >= els.length) return null;
		const r = els[%d].getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	})()`, clickableQuery, matchIdx, matchIdx)

	var rect *browser.Rect
	if err := tab.Eval(ctx, js, &rect); err != nil {
		return browser.Rect{}, false, err
	}
	if rect == nil || rect.Width <= 0 || rect.Height <= 0 {
		return browser.Rect{}, false, nil
	}
	return *rect, true, nil
}
