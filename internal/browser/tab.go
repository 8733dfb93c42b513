package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Tab is one attached browser tab. The automation engine, both capture
// channels and the supervisor all hold the same Tab value; per-tab state
// isolation hangs off its ID.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string
}

func newTab(ctx context.Context, cancel context.CancelFunc) *Tab {
	t := &Tab{ctx: ctx, cancel: cancel}
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		t.id = string(c.Target.TargetID)
	}
	return t
}

// ID returns the DevTools target id for this tab, or "" on a nil Tab.
func (t *Tab) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// Context returns the tab's chromedp context, for event listeners.
func (t *Tab) Context() context.Context { return t.ctx }

// Done is closed when the tab goes away (closed by the user, browser gone).
func (t *Tab) Done() <-chan struct{} { return t.ctx.Done() }

// Close detaches from the tab.
func (t *Tab) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

// run executes actions under a bounded deadline so a wedged renderer can
// never hang a caller forever.
func (t *Tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := t.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(t.ctx, timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate loads a URL in the tab.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, 30*time.Second, chromedp.Navigate(url))
}

// Reload reloads the page.
func (t *Tab) Reload(ctx context.Context) error {
	return t.run(ctx, 30*time.Second, chromedp.Reload())
}

// Location returns the tab's current URL.
func (t *Tab) Location(ctx context.Context) (string, error) {
	var url string
	err := t.run(ctx, 5*time.Second, chromedp.Location(&url))
	return url, err
}

// Eval evaluates a JS expression in the page and unmarshals the result
// into out (pass nil to ignore the result).
func (t *Tab) Eval(ctx context.Context, js string, out any) error {
	if out == nil {
		return t.run(ctx, 10*time.Second, chromedp.Evaluate(js, nil))
	}
	return t.run(ctx, 10*time.Second, chromedp.Evaluate(js, out))
}

// OuterHTML returns the full rendered document, for the goquery-based
// text fallbacks.
func (t *Tab) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := t.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// CaptureScreenshot captures the viewport as PNG bytes.
func (t *Tab) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, 15*time.Second, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// ElementScreenshot captures one element as PNG bytes.
func (t *Tab) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, 15*time.Second, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("failed to capture element screenshot: %w", err)
	}
	return buf, nil
}

// Rect is an element's viewport-relative bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementRect returns the bounding box of the first element matching any
// of the given selectors, or false when none match.
func (t *Tab) ElementRect(ctx context.Context, selectors ...string) (Rect, bool, error) {
	sel, err := json.Marshal(selectors)
	if err != nil {
		return Rect{}, false, err
	}
	js := fmt.Sprintf(`(() => {
		for (const sel of %s) {
			const el = document.querySelector(sel);
			if (el) {
				const r = el.getBoundingClientRect();
				if (r.width > 0 && r.height > 0) {
					return {x: r.x, y: r.y, width: r.width, height: r.height};
				}
			}
		}
		return null;
	})()`, sel)

	var rect *Rect
	if err := t.Eval(ctx, js, &rect); err != nil {
		return Rect{}, false, err
	}
	if rect == nil {
		return Rect{}, false, nil
	}
	return *rect, true, nil
}

// ClickXY dispatches a real move/press/release pointer sequence at
// viewport coordinates. The target UI ignores bare synthetic click events,
// so this goes through the Input domain like a human hand would.
func (t *Tab) ClickXY(ctx context.Context, x, y float64) error {
	return t.run(ctx, 5*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		time.Sleep(40 * time.Millisecond)
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		time.Sleep(30 * time.Millisecond)
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
}

// ClickSelector clicks the first visible element matching the selector.
func (t *Tab) ClickSelector(ctx context.Context, selector string) error {
	return t.run(ctx, 5*time.Second,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// TypeInto clears a field and types text into it, firing the input events
// frameworks listen for.
func (t *Tab) TypeInto(ctx context.Context, selector, text string) error {
	return t.run(ctx, 10*time.Second,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// PressEnter sends the Enter key to the focused element.
func (t *Tab) PressEnter(ctx context.Context) error {
	return t.run(ctx, 5*time.Second, chromedp.KeyEvent("\r"))
}

// RunAction executes a raw protocol action inside the tab's executor, for
// callers that need cdproto commands not wrapped above. fn receives a
// context already bound to this tab's target.
func (t *Tab) RunAction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, 0, chromedp.ActionFunc(fn))
}
