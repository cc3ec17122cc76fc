// Package commands defines all Cobra CLI commands for the waiterbot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/waiterbot-go/internal/audit"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "waiterbot",
		Short: "WaiterBot, a menu-grounded waiter chatbot for restaurants",
		Long: `WaiterBot answers guest questions about a restaurant menu.

Menu items are embedded into a vector index; each guest message retrieves
the closest items and asks an LLM to answer in the voice of a waiter,
refusing anything the menu does not cover.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.waiterbot/config.yaml). A .env file in the
working directory is loaded first.
See 'waiterbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.waiterbot/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewBackfillCmd(),
		NewVersionCmd(),
	)

	return root
}
