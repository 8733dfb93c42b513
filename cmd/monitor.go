package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/taimoss/geoguessr-ai-1/internal/config"
	"github.com/taimoss/geoguessr-ai-1/internal/status"
	"github.com/taimoss/geoguessr-ai-1/internal/ui"
)

// monitorCmd tails a running session's status feed in a TUI.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running automation session",
	Long: `Monitor connects to the status feed of a geoai play or scrape session
running on this machine and shows its phase, coordinates, and round
results live.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("addr", "", "status feed address (default from config)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = config.GetString("status.listenAddr")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := status.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("is a session running? %w", err)
	}

	p := tea.NewProgram(ui.NewMonitor(events), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
