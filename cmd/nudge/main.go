package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/nudge/internal/controlplane"
)

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Nudge - reminders that keep asking until you answer",
	Long: `Nudge is a reminder daemon and CLI. Tasks carry an optional reminder time and
repeat rule; the daemon re-sends unanswered reminders and quarantines the ones
that are ignored too often.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nudge", controlplane.Version)
	},
}

var (
	apiAddr    string
	ownerFlag  string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", envOr("NUDGE_API", "http://127.0.0.1:7477"), "API server address")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner to act as when the daemon runs without auth (default $NUDGE_OWNER or $USER)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.nudge/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
