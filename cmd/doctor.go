package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/taimoss/geoguessr-ai-1/internal/backend"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
)

// doctorCmd checks that the pieces a session needs are reachable.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check backend and browser connectivity",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failures := 0

	baseURL := config.GetString("backend.baseURL")
	client := backend.NewClient(baseURL, 5*time.Second)
	if err := client.Healthy(ctx); err != nil {
		fmt.Printf("✗ backend %s: %v\n", baseURL, err)
		failures++
	} else {
		fmt.Printf("✓ backend %s\n", baseURL)
	}

	debugAddr := fmt.Sprintf("%s:%d", config.GetString("chrome.debugHost"), config.GetInt("chrome.debugPort"))
	conn, err := net.DialTimeout("tcp", debugAddr, 2*time.Second)
	if err != nil {
		fmt.Printf("- browser debug port %s not open (a new browser will be launched)\n", debugAddr)
	} else {
		conn.Close()
		fmt.Printf("✓ browser debug port %s\n", debugAddr)
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("All checks passed.")
	return nil
}
