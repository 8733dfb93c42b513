package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

//go:embed selectors.yaml
var embeddedSelectors []byte

// Selectors is the full table of selector fallbacks and label strings used
// to find controls in the target UI.
type Selectors struct {
	Scene struct {
		Canvas    []string `yaml:"canvas"`
		MinWidth  int      `yaml:"min_width"`
		MinHeight int      `yaml:"min_height"`
	} `yaml:"scene"`
	GuessMap struct {
		Container   []string `yaml:"container"`
		SearchInput []string `yaml:"search_input"`
	} `yaml:"guess_map"`
	Submit ControlSelectors `yaml:"submit"`
	Result struct {
		Panel       []string         `yaml:"panel"`
		ViewResults ControlSelectors `yaml:"view_results"`
	} `yaml:"result"`
	NextRound ControlSelectors `yaml:"next_round"`
	PlayAgain ControlSelectors `yaml:"play_again"`
	Markers   struct {
		GuessClasses     []string `yaml:"guess_classes"`
		ResultClasses    []string `yaml:"result_classes"`
		AriaResultLabels []string `yaml:"aria_result_labels"`
	} `yaml:"markers"`
}

// ControlSelectors pairs CSS selector variants with the label strings used
// for text-content fallback matching.
type ControlSelectors struct {
	Selectors []string `yaml:"selectors"`
	Labels    []string `yaml:"labels"`
}

// SelectorTable serves the current selector set and supports live reload of
// an on-disk override while a driver runs.
type SelectorTable struct {
	mu      sync.RWMutex
	current Selectors
	path    string
	watcher *fsnotify.Watcher
}

// LoadSelectors parses the embedded table, then applies the override file
// from dataDir if one exists.
func LoadSelectors(dataDir string) (*SelectorTable, error) {
	var base Selectors
	if err := yaml.Unmarshal(embeddedSelectors, &base); err != nil {
		return nil, fmt.Errorf("embedded selector table is invalid: %w", err)
	}

	t := &SelectorTable{current: base, path: filepath.Join(dataDir, "selectors.yaml")}
	if _, err := os.Stat(t.path); err == nil {
		if err := t.reload(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Current returns the selector set in effect.
func (t *SelectorTable) Current() Selectors {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *SelectorTable) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read selector override: %w", err)
	}
	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("selector override is invalid: %w", err)
	}
	t.mu.Lock()
	t.current = s
	t.mu.Unlock()
	return nil
}

// Watch reloads the override file whenever it changes. A broken edit keeps
// the previous table; the loop must not die because of a stray keystroke in
// an editor. Call the returned stop function when the driver exits.
func (t *SelectorTable) Watch() (func(), error) {
	log := logging.Component("selectors")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create selector watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch selector directory: %w", err)
	}
	t.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != t.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if err := t.reload(); err != nil {
					log.Warn().Err(err).Msg("selector override rejected, keeping previous table")
					continue
				}
				log.Info().Str("path", t.path).Msg("selector table reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("selector watcher error")
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
