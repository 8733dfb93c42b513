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

var playGames int

// playCmd runs prediction-driven play.
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play rounds using backend predictions",
	Long: `Play drives full games: each round it screenshots the panorama, asks the
inference backend for a location, places the guess there, and logs the
round's prediction against the captured ground truth.

Runs until interrupted, or for a fixed number of games with --games.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().IntVar(&playGames, "games", 0, "stop after this many games (0 = run until interrupted)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return fmt.Errorf("session setup failed: %w", err)
	}
	defer s.Close()

	fmt.Printf("Playing as %s, Ctrl-C to stop\n", s.driver.Machine.AC.SessionID)
	err = s.driver.AutoPlay(ctx, playGames)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("Stopped.")
	return nil
}
