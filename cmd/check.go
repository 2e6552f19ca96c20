package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/presence"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Capture one frame and report who the camera sees",
	Long: `Run a single capture and recognition cycle, then print the
detections and the resulting observation. Useful for verifying the
camera, the face service and the enrollment before starting the
monitor.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("save", "", "Save the captured frame as JPEG to this path")
	checkCmd.Flags().Int("timeout", 10, "Overall timeout in seconds")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	_, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	timeout := time.Duration(mustGetInt(cmd, "timeout")) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rec, err := loadRecognizer(ctx, cfg, nil, false)
	if err != nil {
		return fmt.Errorf("loading enrollment: %w", err)
	}
	fmt.Printf("Enrolled identities: %d\n", rec.EnrolledCount())

	source, err := openFrameSource(cfg)
	if err != nil {
		return fmt.Errorf("opening camera: %w", err)
	}
	defer source.Close()

	frame, err := source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring frame: %w", err)
	}
	fmt.Printf("Frame: %dx%d, %d bytes\n", frame.Width, frame.Height, len(frame.Data))

	if path := mustGetString(cmd, "save"); path != "" {
		if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
			return fmt.Errorf("saving frame: %w", err)
		}
		fmt.Printf("Frame saved to %s\n", path)
	}

	detections, err := rec.Analyze(ctx, frame)
	if err != nil {
		return fmt.Errorf("analyzing frame: %w", err)
	}

	fmt.Printf("Faces detected: %d\n", len(detections))
	for i, d := range detections {
		identity := d.Identity
		if identity == "" {
			identity = "(unknown)"
		}
		fmt.Printf("  %d: %s  score=%.2f  distance=%.3f\n", i+1, identity, d.Score, d.Distance)
	}

	obs := presence.Classify(detections)
	fmt.Printf("Observation: %s\n", obs)
	fmt.Printf("Argues for state: %s\n", obs.CandidateState())

	return nil
}
