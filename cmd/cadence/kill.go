package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/cadence/id"
)

var killCmd = &cobra.Command{
	Use:   "kill <job-id>",
	Short: "Kill a pending or running job",
	Long: `Kill a job. A pending job is marked killed directly; a running job
gets a kill signal addressed to the worker that owns it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := id.ParseJobID(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		opts, closeNotifier, err := notifierOptions(ctx)
		if err != nil {
			return err
		}
		defer closeNotifier()

		sess, err := openSession(ctx, opts...)
		if err != nil {
			return err
		}
		defer sess.close() //nolint:errcheck // best-effort cleanup

		if err := sess.eng.KillJob(ctx, jobID); err != nil {
			return err
		}

		j, err := sess.eng.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), j)
	},
}
