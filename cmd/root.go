package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

var (
	dataDir string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geoai",
	Short: "Automates a geolocation guessing game against an inference backend",
	Long: `geoai drives a browser through rounds of a geolocation guessing game.
It captures the ground-truth coordinates the game leaks over the network,
screenshots each panorama, asks an inference backend where the picture was
taken, and plays the guess back into the game's own UI.

Run 'geoai play' for prediction-driven play, 'geoai scrape' for unattended
dataset collection, or 'geoai monitor' to watch a running session.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.geoai)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().String("backend", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().Bool("headless", false, "run the browser headless")
	rootCmd.PersistentFlags().String("remote", "", "attach to a running browser at this debugging URL")
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	if err := logging.Setup(dataDir, verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	if err := config.Load(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}

	if backend, _ := rootCmd.PersistentFlags().GetString("backend"); backend != "" {
		config.Set("backend.baseURL", backend)
	}
	if headless, _ := rootCmd.PersistentFlags().GetBool("headless"); headless {
		config.Set("chrome.headless", true)
	}
}
