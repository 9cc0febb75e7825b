package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clickreplay/internal/api"
	"clickreplay/internal/core"
	"clickreplay/internal/service"
)

func jobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled playback jobs",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.client().ListJobs(cmd.Context(), status)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(jobs); ok {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(a.out, "No jobs found")
				return nil
			}
			tw := a.table()
			fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tSTATUS\tNEXT RUN\tRUNS\tLAST RESULT")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", j.ID, j.Name, scheduleLabel(j), j.Status,
					a.ago(j.NextRunAt), j.RunCount, orDash(j.LastResult))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "active, paused, completed or failed")
	cmd.AddCommand(list, createJobCommand(a))

	cmd.AddCommand(&cobra.Command{
		Use:   "run <id>",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RunJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Job %s started\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(jobStatusCommand(a, core.JobStatusPaused), jobStatusCommand(a, core.JobStatusActive))
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted job %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func jobStatusCommand(a *app, status core.JobStatus) *cobra.Command {
	use, short := "pause <id>", "Pause a job"
	if status == core.JobStatusActive {
		use, short = "resume <id>", "Resume a paused job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			var (
				job api.JobResponse
				err error
			)
			if status == core.JobStatusActive {
				job, err = c.ResumeJob(cmd.Context(), args[0])
			} else {
				job, err = c.PauseJob(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(job); ok {
				return err
			}
			fmt.Fprintf(a.out, "Job %s is %s, next run %s\n", job.Name, job.Status, a.ago(job.NextRunAt))
			return nil
		},
	}
}

func createJobCommand(a *app) *cobra.Command {
	var (
		in    service.JobInput
		runAt string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a sequence",
		Example: `  clickreplayctl jobs create --name nightly --sequence <id> --type daily --at 2024-05-01T02:00:00Z
  clickreplayctl jobs create --name poll --sequence <id> --type interval --every 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runAt != "" {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				in.RunAt = &t
			}
			job, err := a.client().CreateJob(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(job); ok {
				return err
			}
			fmt.Fprintf(a.out, "Created job %s (%s), next run %s\n", job.ID, scheduleLabel(job), a.ago(job.NextRunAt))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "job name")
	f.StringVar(&in.SequenceID, "sequence", "", "sequence id to play")
	f.StringVar((*string)(&in.ScheduleType), "type", string(core.ScheduleOnce), "once, interval, hourly or daily")
	f.StringVar(&runAt, "at", "", "RFC3339 run time; daily jobs keep only its time of day")
	f.IntVar(&in.IntervalMins, "every", 0, "minutes between interval runs")
	f.IntVar(&in.RepeatCount, "repeat", 1, "passes per run")
	f.Float64Var(&in.SpeedMultiplier, "speed", 1, "delay divisor")
	f.BoolVar(&in.StopOnError, "stop-on-error", false, "stop at the first failed step")
	f.BoolVar(&in.Screenshots, "screenshots", false, "capture a screenshot when a step fails")
	f.BoolVar(&in.Paused, "paused", false, "create the job paused")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("sequence")
	return cmd
}

func scheduleLabel(j api.JobResponse) string {
	switch core.ScheduleType(j.ScheduleType) {
	case core.ScheduleInterval:
		return fmt.Sprintf("every %dm", j.IntervalMins)
	case core.ScheduleOnce, core.ScheduleDaily:
		if j.RunAt != nil {
			return j.ScheduleType + " " + *j.RunAt
		}
	}
	return j.ScheduleType
}
