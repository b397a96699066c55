package cli

import (
	"fmt"

	"github.com/harun/docsess/pkg/session"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove idle sessions once",
	Long:  `Remove every session not updated within session.ttl.`,
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper, err := session.NewSweeper(a.store, a.cfg.Session.TTL, a.cfg.Session.SweepSchedule)
	if err != nil {
		return err
	}

	purged, err := sweeper.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d idle sessions\n", purged)
	return nil
}
