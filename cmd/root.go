package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "presence-guard",
	Short: "Camera based presence monitor that locks your session",
	Long: `Presence Guard continuously watches the webcam, recognizes who is in
front of the machine against a set of enrolled reference images, and
locks the desktop session when the authorized user leaves or an
unknown face shows up.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
