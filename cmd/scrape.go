package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// scrapeCmd runs the unattended collection loop.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect panoramas and ground truth unattended",
	Long: `Scrape runs rounds back to back with throwaway center-map guesses, as fast
as the game allows. Every round uploads the panorama and its captured
ground-truth coordinate to the backend for dataset building.

The loop self-heals: stuck pages are reloaded, stale capture channels are
reattached, and the session resumes automatically after a forced reload.
It runs until interrupted.`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return fmt.Errorf("session setup failed: %w", err)
	}
	defer s.Close()

	fmt.Printf("Scraping as %s, Ctrl-C to stop\n", s.driver.Machine.AC.SessionID)
	err = s.driver.Scrape(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("Stopped.")
	return nil
}
