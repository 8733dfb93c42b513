// Package config holds runtime configuration and user-persisted settings.
//
// Every heuristic threshold in the automation engine is a config key with
// the empirically chosen value as its default. These are policy, not
// protocol: operators tune them per machine and per target-site mood.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const configFileName = "geoai.yaml"

// Load sets defaults and reads the optional config file from dataDir.
// A missing file is not an error; everything runs on defaults.
func Load(dataDir string) error {
	viper.SetDefault("backend.baseURL", "http://localhost:8000")
	viper.SetDefault("backend.timeout", "30s")

	viper.SetDefault("session.prefix", "session")
	viper.SetDefault("session.autoPlayEnabled", false)
	viper.SetDefault("session.gameURL", "https://www.geoguessr.com/maps/world/play")

	viper.SetDefault("chrome.debugHost", "127.0.0.1")
	viper.SetDefault("chrome.debugPort", 9222)
	viper.SetDefault("chrome.headless", false)
	viper.SetDefault("chrome.windowWidth", 1920)
	viper.SetDefault("chrome.windowHeight", 1080)

	viper.SetDefault("engine.roundsPerGame", 5)
	viper.SetDefault("engine.sceneTimeout", "20s")
	viper.SetDefault("engine.coordSettle", "1500ms")
	viper.SetDefault("engine.resultTimeout", "25s")
	viper.SetDefault("engine.submitTimeout", "10s")
	viper.SetDefault("engine.transitionRetries", 3)
	viper.SetDefault("engine.scanInterval", "200ms")
	viper.SetDefault("engine.markerMoveThreshold", 0.0005)

	viper.SetDefault("supervisor.stuckTimeout", "90s")
	viper.SetDefault("supervisor.duplicateLimit", 3)
	viper.SetDefault("supervisor.staleCoordTimeout", "45s")
	viper.SetDefault("supervisor.nullCoordLimit", 2)
	viper.SetDefault("supervisor.reconnectSettle", "3s")

	viper.SetDefault("image.darknessRatio", 0.8)
	viper.SetDefault("image.darknessThreshold", 24)
	viper.SetDefault("image.minBuckets", 5)
	viper.SetDefault("image.sampleStride", 512)

	viper.SetDefault("capture.urlPattern", "SingleImageSearch")
	viper.SetDefault("capture.languagePriority", []string{"en", "en-US", "fr", "de", "es"})
	viper.SetDefault("capture.placeTargetLen", 30)

	viper.SetDefault("status.listenAddr", "127.0.0.1:7399")

	viper.SetConfigFile(filepath.Join(dataDir, configFileName))
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("GEOAI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Save writes the current settings back to dataDir, creating the file if it
// does not exist. This backs the user-persisted settings (backend URL,
// session prefix, auto-play flag) that survive restarts.
func Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return viper.WriteConfigAs(filepath.Join(dataDir, configFileName))
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".geoai"
	}
	return filepath.Join(home, ".geoai")
}

// GetString returns a string config value.
func GetString(key string) string { return viper.GetString(key) }

// GetInt returns an int config value.
func GetInt(key string) int { return viper.GetInt(key) }

// GetBool returns a bool config value.
func GetBool(key string) bool { return viper.GetBool(key) }

// GetFloat returns a float config value.
func GetFloat(key string) float64 { return viper.GetFloat64(key) }

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration { return viper.GetDuration(key) }

// GetStringSlice returns a string-slice config value.
func GetStringSlice(key string) []string { return viper.GetStringSlice(key) }

// Set overrides a config value in memory (flag binding, tests).
func Set(key string, value any) { viper.Set(key, value) }
