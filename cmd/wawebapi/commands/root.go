// Package commands implements the wawebapi CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wawebapi",
		Short: "WhatsAppWebAPI - HTTP endpoint for a WhatsApp account",
		Long: `WhatsAppWebAPI turns a WhatsApp account into an HTTP endpoint:
QR pairing, message sending, webhook delivery and auto-responses.

Examples:
  wawebapi serve
  wawebapi serve --config ./wawebapi.yaml
  wawebapi token set`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
