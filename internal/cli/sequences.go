package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clickreplay/internal/core"
	"clickreplay/internal/service"
)

func sequencesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sequences",
		Aliases: []string{"seq"},
		Short:   "Manage recorded sequences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seqs, err := a.client().ListSequences(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(seqs); ok {
				return err
			}
			if len(seqs) == 0 {
				fmt.Fprintln(a.out, "No sequences saved")
				return nil
			}
			tw := a.table()
			fmt.Fprintln(tw, "ID\tNAME\tSTEPS\tUPDATED")
			for _, s := range seqs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.StepCount, a.ago(&s.UpdatedAt))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show the steps of a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := a.client().GetSequence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(seq); ok {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n", seq.Name, seq.ID)
			if seq.Description != "" {
				fmt.Fprintln(a.out, seq.Description)
			}
			for _, action := range seq.Actions {
				fmt.Fprintln(a.out, "  "+action.Summary())
			}
			return nil
		},
	})

	var saveFile string
	save := &cobra.Command{
		Use:   "save",
		Short: "Create or replace a sequence from a JSON file",
		Long:  "Reads {\"name\", \"description\", \"actions\"} from --file. A sequence with the same name is replaced.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in service.SequenceInput
			if err := readJSONFile(saveFile, &in); err != nil {
				return err
			}
			seq, err := a.client().SaveSequence(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(seq); ok {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s (%s, %d steps)\n", seq.Name, seq.ID, seq.StepCount)
			return nil
		},
	}
	save.Flags().StringVarP(&saveFile, "file", "f", "-", "JSON file, - for stdin")
	cmd.AddCommand(save)

	var recordFile string
	record := &cobra.Command{
		Use:   "record",
		Short: "Build a sequence from a captured input event log",
		Long:  "Reads {\"name\", \"attached_pid\", \"force_coordinates\", \"events\"} from --file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in service.RecordInput
			if err := readJSONFile(recordFile, &in); err != nil {
				return err
			}
			seq, err := a.client().RecordSequence(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(seq); ok {
				return err
			}
			fmt.Fprintf(a.out, "Recorded %s (%s, %d steps)\n", seq.Name, seq.ID, seq.StepCount)
			for _, action := range seq.Actions {
				fmt.Fprintln(a.out, "  "+action.Summary())
			}
			return nil
		},
	}
	record.Flags().StringVarP(&recordFile, "file", "f", "-", "JSON file, - for stdin")
	cmd.AddCommand(record)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().DeleteSequence(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted sequence %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// pollInterval paces play --wait while the session is still running.
const pollInterval = 200 * time.Millisecond

func playCommand(a *app) *cobra.Command {
	var (
		in   service.PlayInput
		pid  uint32
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "play <sequence-id>",
		Short: "Play a sequence now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pid") {
				in.ProcessScope = &pid
			}
			c := a.client()
			sessionID, err := c.Play(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			if !wait {
				if ok, err := a.printJSON(map[string]string{"session_id": sessionID}); ok {
					return err
				}
				fmt.Fprintf(a.out, "Started session %s\n", sessionID)
				return nil
			}
			for {
				sess, err := c.GetSession(cmd.Context(), sessionID)
				if err == nil {
					if ok, err := a.printJSON(sess); ok {
						return err
					}
					printSession(a, sess.TestSession)
					if sess.FailureCount > 0 {
						return fmt.Errorf("%d steps failed", sess.FailureCount)
					}
					return nil
				}
				if !isNotFound(err) {
					return err
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(pollInterval):
				}
			}
		},
	}
	cmd.Flags().IntVar(&in.RepeatCount, "repeat", 1, "number of passes")
	cmd.Flags().Float64Var(&in.SpeedMultiplier, "speed", 1, "delay divisor, 2 plays twice as fast")
	cmd.Flags().BoolVar(&in.StopOnError, "stop-on-error", false, "stop at the first failed step")
	cmd.Flags().BoolVar(&in.Screenshots, "screenshots", false, "capture a screenshot when a step fails")
	cmd.Flags().Uint32Var(&pid, "pid", 0, "restrict playback to this process")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the session and print its steps")
	return cmd
}

func statusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the playback status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().PlaybackStatus(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(st); ok {
				return err
			}
			if !st.Playing {
				fmt.Fprintln(a.out, "Idle")
				return nil
			}
			fmt.Fprintf(a.out, "Playing session %s: %d/%d steps, %d failed\n",
				st.SessionID, st.Completed, st.Planned, st.Failed)
			return nil
		},
	}
}

func stopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel the running playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stopped, err := a.client().StopPlayback(cmd.Context())
			if err != nil {
				return err
			}
			if stopped {
				fmt.Fprintln(a.out, "Stop requested")
			} else {
				fmt.Fprintln(a.out, "Nothing is playing")
			}
			return nil
		},
	}
}

func printSession(a *app, sess *core.TestSession) {
	if sess == nil {
		return
	}
	fmt.Fprintf(a.out, "Session %s: %s\n", sess.ID, sess.Summary())
	for _, step := range sess.Steps {
		fmt.Fprintln(a.out, "  "+step.String())
	}
	for _, ex := range sess.UnhandledExceptions {
		fmt.Fprintf(a.out, "  unhandled %s: %s\n", ex.ShortType(), ex.Message)
	}
}

func launchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <target> [args...]",
		Short: "Start the application under test and print its process id",
		Long:  "Start the application under test on the daemon's desktop. Pass the printed pid to play --pid.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().Launch(cmd.Context(), service.LaunchInput{Target: args[0], Args: args[1:]})
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(res); ok {
				return err
			}
			if res.PID == 0 {
				fmt.Fprintf(a.out, "Launched %s via %s, pid unknown\n", res.Target, res.Method)
				return nil
			}
			fmt.Fprintf(a.out, "Launched %s (pid %d)\n", res.Target, res.PID)
			return nil
		},
	}
}
