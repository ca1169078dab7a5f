package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print workers, queue, jobs and crons as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close() //nolint:errcheck // best-effort cleanup

		status, err := sess.eng.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Print live workers and the queue as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close() //nolint:errcheck // best-effort cleanup

		hc, err := sess.eng.Healthcheck(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), hc)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
