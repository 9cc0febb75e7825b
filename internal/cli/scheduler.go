package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"clickreplay/internal/service"
)

func schedulerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Control the job scheduler",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the scheduler is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().SchedulerStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printSchedulerStatus(a, st)
		},
	})
	for _, running := range []bool{true, false} {
		use, short := "stop", "Stop polling for due jobs"
		if running {
			use, short = "start", "Start polling for due jobs"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := a.client().SetScheduler(cmd.Context(), running)
				if err != nil {
					return err
				}
				return printSchedulerStatus(a, st)
			},
		})
	}

	var (
		tail   int
		follow bool
	)
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Print the scheduler log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.client()
			if follow {
				return c.FollowSchedulerLog(cmd.Context(), tail, a.out)
			}
			text, err := c.SchedulerLog(cmd.Context(), tail)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, text)
			return nil
		},
	}
	logCmd.Flags().IntVarP(&tail, "tail", "n", 50, "number of recent lines, 0 for all")
	logCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	cmd.AddCommand(logCmd)
	return cmd
}

func printSchedulerStatus(a *app, st service.SchedulerStatus) error {
	if ok, err := a.printJSON(st); ok {
		return err
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(a.out, "Scheduler %s (%s), %d active jobs\n", state, st.Location, st.ActiveJobs)
	if st.NextRunAt != nil {
		fmt.Fprintf(a.out, "Next run %s\n", st.NextRunAt.In(a.now().Location()).Format("2006-01-02 15:04:05"))
	}
	return nil
}
