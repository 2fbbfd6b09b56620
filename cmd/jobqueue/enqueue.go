package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobqueue/job"
	"github.com/xraph/jobqueue/target"
)

func newEnqueueCmd(a *app) *cobra.Command {
	var (
		data, principalID, client string
		at                        string
		in                        time.Duration
		retries                   int
		jobDelay, minInterval     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue NAME TARGET",
		Short: "Create a job",
		Long: `Create a QUEUED job. TARGET is a descriptor such as
function::name, function::Class::method or url::https://host/path.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, desc := args[0], args[1]
			if _, err := target.Parse(desc); err != nil {
				return err
			}

			opts := []job.Option{
				job.WithData(data),
				job.WithPrincipal(principalID),
				job.WithClient(client),
				job.WithJobDelay(jobDelay),
				job.WithMinInterval(minInterval),
			}
			switch {
			case at != "" && in != 0:
				return fmt.Errorf("--at and --in are mutually exclusive")
			case at != "":
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
				opts = append(opts, job.WithExecuteTime(t.UTC()))
			case in != 0:
				opts = append(opts, job.WithExecuteTime(time.Now().UTC().Add(in)))
			}
			if cmd.Flags().Changed("requeue") {
				opts = append(opts, job.WithRequeue(retries))
			}

			j, err := a.eng.CreateJob(cmd.Context(), name, desc, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), j.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&data, "data", "", "payload passed to the target")
	f.StringVar(&principalID, "principal", "", "principal the job runs as")
	f.StringVar(&client, "client", "", "only workers with this client tag may run the job")
	f.StringVar(&at, "at", "", "execute time (RFC 3339)")
	f.DurationVar(&in, "in", 0, "execute after this delay")
	f.IntVar(&retries, "requeue", 0, "retry up to N times on failure")
	f.DurationVar(&jobDelay, "job-delay", 0, "base delay before a retry")
	f.DurationVar(&minInterval, "min-interval", 0, "minimum delay before a retry")
	return cmd
}
