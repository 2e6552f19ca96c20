package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/match"
	"github.com/kozaktomas/presence-guard/internal/recognizer"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Inspect the enrollment directory",
	Long: `Load every reference image from the enrollment directory, encode the
faces and list the identities the monitor will accept. With --verify,
also check that each identity's encodings agree with each other.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("verify", false, "Check encoding consistency within each identity")
	enrollCmd.Flags().Int("timeout", 120, "Overall timeout in seconds")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	_, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	timeout := time.Duration(mustGetInt(cmd, "timeout")) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	provider, err := recognizer.NewHTTPProvider(cfg.Recognizer.ServiceURL)
	if err != nil {
		return fmt.Errorf("creating face provider: %w", err)
	}

	identities, err := recognizer.LoadEnrollment(ctx, provider, cfg.Enrollment.Dir, recognizer.LoadOptions{})
	if err != nil {
		if errors.Is(err, recognizer.ErrEnrollmentEmpty) {
			fmt.Printf("No usable reference images in %s\n", cfg.Enrollment.Dir)
			fmt.Println("Drop JPEG or PNG photos there, one clear face per file.")
			fmt.Println("The filename (minus extension and trailing numbers) becomes the identity.")
			return nil
		}
		return fmt.Errorf("loading enrollment: %w", err)
	}

	fmt.Printf("Enrollment directory: %s\n", cfg.Enrollment.Dir)
	fmt.Printf("Identities: %d\n\n", len(identities))
	for _, id := range identities {
		fmt.Printf("  %-20s %d encoding(s)\n", id.Name, len(id.Encodings))
	}

	if !mustGetBool(cmd, "verify") {
		return nil
	}

	fmt.Println("\nVerifying intra-identity consistency...")
	problems := 0
	for _, id := range identities {
		worst := worstPairDistance(id.Encodings)
		if len(id.Encodings) < 2 {
			fmt.Printf("  %-20s single encoding, nothing to compare\n", id.Name)
			continue
		}
		status := "ok"
		if worst >= cfg.Recognizer.MatchThreshold {
			status = "INCONSISTENT, check the reference images"
			problems++
		}
		fmt.Printf("  %-20s worst pair distance %.3f (threshold %.2f): %s\n",
			id.Name, worst, cfg.Recognizer.MatchThreshold, status)
	}

	if problems > 0 {
		return fmt.Errorf("%d identities have inconsistent encodings", problems)
	}
	fmt.Println("All identities consistent.")
	return nil
}

// worstPairDistance returns the largest cosine distance between any two
// encodings of the same identity.
func worstPairDistance(encodings [][]float32) float64 {
	worst := 0.0
	for i := 0; i < len(encodings); i++ {
		for j := i + 1; j < len(encodings); j++ {
			if d := match.CosineDistance(encodings[i], encodings[j]); d > worst {
				worst = d
			}
		}
	}
	return worst
}
