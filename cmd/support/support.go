// Package support provides the daemon CLI's "support" subcommand,
// adapted from the corpus' own support-collection command onto
// internal/diagnostics.CollectSupportBundle — a single zip of
// PipeWire/ALSA device dumps, daemon journal logs, and masked config,
// rather than the corpus' multi-format dump-plus-archive pipeline.
package support

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undertone-audio/undertone/internal/diagnostics"
)

// Command returns a cobra command that collects a support bundle for
// troubleshooting and reports the path it was written to.
func Command(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "support",
		Short: "Collect a diagnostics bundle for troubleshooting",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := diagnostics.CollectSupportBundle(*configPath)
			if err != nil {
				return fmt.Errorf("collecting support bundle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "support bundle written to %s\n", path)
			return nil
		},
	}
}
