package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/job"
)

func newListCmd(a *app) *cobra.Command {
	var (
		status, client string
		all            bool
		limit, offset  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.eng.ListJobs(cmd.Context(), job.ListOpts{
				Status:         job.Status(strings.ToUpper(status)),
				Client:         client,
				IncludeDeleted: all,
				Limit:          limit,
				Offset:         offset,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tRESOLUTION\tCLIENT\tEXECUTE AT\tTARGET")
			for _, j := range jobs {
				name := j.Name
				if j.IsDeleted() {
					name += " (deleted)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					j.ID, name, j.Status, j.Resolution, j.Client,
					j.ExecuteTime.Format(time.RFC3339), j.Target)
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&status, "status", "", "filter by status (QUEUED, RUNNING, DONE)")
	f.StringVar(&client, "client", "", "filter by client tag")
	f.BoolVar(&all, "all", false, "include soft-deleted jobs")
	f.IntVar(&limit, "limit", 100, "maximum number of jobs")
	f.IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}
