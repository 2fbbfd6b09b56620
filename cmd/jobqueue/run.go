package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/id"
)

func newRunCmd(a *app) *cobra.Command {
	var client string

	cmd := &cobra.Command{
		Use:   "run JOB_ID",
		Short: "Run one job now, in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ok, err := a.eng.RunJobID(ctx, args[0], client)
			if err != nil {
				return err
			}

			// RunJobID succeeded, so the id parsed.
			jobID, _ := id.ParseJobID(args[0])
			j, err := a.eng.GetJob(ctx, jobID, true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s/%s success=%t\n", j.ID, j.Status, j.Resolution, ok)
			if j.Message != "" {
				fmt.Fprintln(out, j.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "client tag of this runner")
	return cmd
}
