// Package browser wraps chromedp with the small surface the automation
// engine needs: launch or attach to a Chrome, open tabs, evaluate JS,
// screenshot, and dispatch genuine pointer sequences.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"

	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

// Manager owns one Chrome process (or one remote attachment) and hands out
// tabs. All tab contexts descend from the browser context, so closing the
// manager tears everything down.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// Options controls how Chrome is started.
type Options struct {
	Headless  bool
	DebugHost string
	DebugPort int
	Width     int
	Height    int
	// RemoteURL attaches to an already-running Chrome instead of
	// launching one (chrome --remote-debugging-port=...).
	RemoteURL string
}

// findChrome locates a usable Chrome executable, same search order on each
// platform.
func findChrome() (string, error) {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		} else if p, err := exec.LookPath(path); err == nil {
			return p, nil
		}
	}
	if p, err := exec.LookPath("chrome"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("Chrome browser not found; install Chrome or Chromium")
}

// NewManager launches Chrome (or attaches to RemoteURL) and verifies the
// browser is responsive.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	log := logging.Component("browser")

	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if opts.RemoteURL != "" {
		log.Info().Str("url", opts.RemoteURL).Msg("attaching to running Chrome")
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		chromePath, err := findChrome()
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", chromePath).Bool("headless", opts.Headless).Msg("launching Chrome")

		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(chromePath),
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.Width, opts.Height),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", opts.DebugPort)),
			chromedp.Flag("remote-debugging-address", opts.DebugHost),
			// Background throttling defeats the keep-alive measures;
			// turn it off at the source as well.
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-backgrounding-occluded-windows", true),
			chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			log.Debug().Msgf("[chrome] "+format, v...)
		}),
	)

	// Starting the browser with a bare Run surfaces launch failures here
	// instead of on the first real action.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// OpenTab creates a new tab and navigates it to url.
func (m *Manager) OpenTab(url string) (*Tab, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab at %s: %w", url, err)
	}
	return newTab(tabCtx, tabCancel), nil
}

// FirstTab adopts the browser's initial tab and navigates it.
func (m *Manager) FirstTab(url string) (*Tab, error) {
	if err := chromedp.Run(m.browserCtx, chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}
	return newTab(m.browserCtx, func() {}), nil
}

// Close shuts down the browser and every tab under it.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
}
