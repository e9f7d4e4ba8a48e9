package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/config"
)

// newTokenCmd creates the `wawebapi token` command group for managing
// the gateway auth token in the OS keyring.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the gateway auth token in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the gateway auth token in the keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Print("Token: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				if len(raw) == 0 {
					return fmt.Errorf("token cannot be empty")
				}
				if err := config.StoreKeyring(config.GatewayTokenKey, string(raw)); err != nil {
					return fmt.Errorf("storing token: %w", err)
				}
				fmt.Println("Token stored in the OS keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the gateway auth token from the keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := config.DeleteKeyring(config.GatewayTokenKey); err != nil {
					return fmt.Errorf("removing token: %w", err)
				}
				fmt.Println("Token removed from the OS keyring.")
				return nil
			},
		},
	)

	return cmd
}
