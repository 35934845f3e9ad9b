package main

import (
	"github.com/spf13/cobra"

	"github.com/lixenwraith/tickgate/config"
)

// RootOptions holds flags shared by all commands
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the tickgate command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tickgate",
		Short: "Fixed-tick engine with a frame-gated window thread",
		Long: `tickgate drives a fixed-interval simulation loop on the main thread and a window
on either the same thread (sync) or a dedicated render thread kept in lock-step by a
frame gate (threadloop).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "yaml config file (defaults apply when empty)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// loadConfig reads the config file, or returns defaults when none is given
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
