package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - Claude Code to Telegram bridge with scheduling",
	Long: `Relay runs the Claude Code CLI as a managed subprocess and bridges it
to Telegram. It adds a heartbeat loop for proactive check-ins, a cron loop
for scheduled jobs, and a directive gate that turns tagged agent output
into memory and schedule side effects.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobCmd)
}
