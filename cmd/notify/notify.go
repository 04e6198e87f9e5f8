// Package notify provides the daemon CLI's "notify" subcommand, adapted
// from the corpus' own notify test-command onto Undertone's single
// shoutrrr-backed Notifier rather than a typed notification-service with
// priority/metadata routing — Undertone fires at most two kinds of
// operator message (spec.md §B.7), so there is nothing for type/priority
// flags to select between.
package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undertone-audio/undertone/internal/conf"
	intnotify "github.com/undertone-audio/undertone/internal/notify"
)

// Command returns a cobra command that sends a one-off test notification
// through the configured shoutrrr URL, to verify operator alerting is
// wired correctly without waiting for a real device disconnect or error.
func Command(configPath *string) *cobra.Command {
	var title, message string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test operator notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if len(settings.Daemon.Notify.URLs) == 0 {
				return fmt.Errorf("no notify URL configured (daemon.notify.urls)")
			}
			n := intnotify.New(settings.Daemon.Notify.URLs[0])
			n.Notify(title, message)
			fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "Undertone test notification", "Notification title")
	cmd.Flags().StringVar(&message, "message", "This is a test notification from undertone-daemon.", "Notification message")

	return cmd
}
