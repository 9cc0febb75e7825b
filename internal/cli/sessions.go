package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clickreplay/internal/client"
)

func sessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect playback history",
	}

	var q client.SessionQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := a.client().ListSessions(cmd.Context(), q)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(sessions); ok {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.out, "No sessions found")
				return nil
			}
			tw := a.table()
			fmt.Fprintln(tw, "ID\tTRIGGER\tSTARTED\tOK\tFAILED\tDURATION\tCANCELLED")
			for _, s := range sessions {
				started := "-"
				if s.TestSession != nil {
					started = a.ago(ptr(s.StartedAt.Format(time.RFC3339)))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%t\n", s.ID, s.Trigger, started,
					s.SuccessCount, s.FailureCount, time.Duration(s.DurationMs)*time.Millisecond, s.WasCancelled)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&q.SequenceID, "sequence", "", "only sessions of this sequence")
	list.Flags().StringVar(&q.JobID, "job", "", "only sessions of this job")
	list.Flags().IntVar(&q.Limit, "limit", 20, "maximum number of sessions")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show every step of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(sess); ok {
				return err
			}
			fmt.Fprintf(a.out, "Trigger: %s\n", sess.Trigger)
			printSession(a, sess.TestSession)
			return nil
		},
	})
	return cmd
}

func ptr[T any](v T) *T { return &v }
