package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/id"
)

func newCronCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage recurring job definitions",
	}
	cmd.AddCommand(newCronAddCmd(a), newCronListCmd(a), newCronRemoveCmd(a))
	return cmd
}

func newCronAddCmd(a *app) *cobra.Command {
	var (
		data, principalID, client string
		retries                   int
		jobDelay, minInterval     time.Duration
		disabled                  bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME SCHEDULE TARGET",
		Short: "Register a recurring job; existing names are left unchanged",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []cron.EntryOption{
				cron.WithData(data),
				cron.WithPrincipal(principalID),
				cron.WithClient(client),
				cron.WithJobDelay(jobDelay),
				cron.WithMinInterval(minInterval),
			}
			if cmd.Flags().Changed("requeue") {
				opts = append(opts, cron.WithRequeue(retries))
			}
			if disabled {
				opts = append(opts, cron.Disabled())
			}

			if err := a.eng.RegisterCron(cmd.Context(), args[0], args[1], args[2], opts...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&data, "data", "", "payload passed to each fired job")
	f.StringVar(&principalID, "principal", "", "principal fired jobs run as")
	f.StringVar(&client, "client", "", "client tag of fired jobs")
	f.IntVar(&retries, "requeue", 0, "let fired jobs retry up to N times")
	f.DurationVar(&jobDelay, "job-delay", 0, "base delay before a retry")
	f.DurationVar(&minInterval, "min-interval", 0, "minimum delay before a retry")
	f.BoolVar(&disabled, "disabled", false, "register without firing")
	return cmd
}

func newCronListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring job definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.eng.ListCrons(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tENABLED\tNEXT RUN\tTARGET")
			for _, e := range entries {
				next := "-"
				if e.NextRunAt != nil {
					next = e.NextRunAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
					e.ID, e.Name, e.Schedule, e.Enabled, next, e.Target)
			}
			return tw.Flush()
		},
	}
}

func newCronRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm CRON_ID",
		Short: "Remove a recurring job definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cronID, err := id.ParseCronID(args[0])
			if err != nil {
				return err
			}
			if err := a.eng.DeleteCron(cmd.Context(), cronID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cronID)
			return nil
		},
	}
}
