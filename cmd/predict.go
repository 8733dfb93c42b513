package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taimoss/geoguessr-ai-1/internal/backend"
	"github.com/taimoss/geoguessr-ai-1/internal/config"
)

// predictCmd requests a single prediction for the current panorama.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the current panorama once, without playing",
	Long: `Predict screenshots whatever panorama the tab currently shows, sends it to
the inference backend, and prints the predicted location. No guess is
placed and no round is played.`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return fmt.Errorf("session setup failed: %w", err)
	}
	defer s.Close()

	m := s.driver.Machine
	if err := m.WaitForScene(ctx); err != nil {
		return fmt.Errorf("no panorama visible: %w", err)
	}
	obs, _ := m.AwaitCoordinates(ctx)

	frame, _, err := m.CaptureFrame(ctx)
	if err != nil {
		return fmt.Errorf("frame capture failed: %w", err)
	}

	client := backend.NewClient(
		config.GetString("backend.baseURL"),
		config.GetDuration("backend.timeout"),
	)
	pred, err := client.Predict(ctx, backend.InferenceRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(frame),
		SessionID:   m.AC.SessionID,
		RoundID:     m.AC.RoundID(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Prediction: %.5f, %.5f\n", pred.Lat, pred.Lon)
	if pred.Country.ID != "" {
		fmt.Printf("Country:    %s", pred.Country.ID)
		if pred.Country.Confidence != nil {
			fmt.Printf(" (%.1f%%)", *pred.Country.Confidence*100)
		}
		fmt.Println()
	}
	fmt.Printf("Model:      %s (%dms)\n", pred.ModelVersion, pred.InferenceTimeMS)
	if obs != nil {
		fmt.Printf("Truth:      %.5f, %.5f\n", obs.Lat, obs.Lon)
	}
	return nil
}
