package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "talkbridge",
	Short: "Bridge between Nextcloud Talk and an agent message bus",
	Long:  "TalkBridge receives signed Nextcloud Talk bot webhooks, publishes them onto a message bus, and delivers agent replies back as signed bot messages.",
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
