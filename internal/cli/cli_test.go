package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickreplay/internal/api"
	"clickreplay/internal/core"
	"clickreplay/internal/service"
	"clickreplay/internal/servicetest"
)

type ctlEnv struct {
	url string
	env *servicetest.Env
}

func newCtlEnv(t *testing.T) *ctlEnv {
	t.Helper()
	env := servicetest.New(t)
	srv := httptest.NewServer(api.NewServer("", "tok", env.Service, nil, env.Logger).Handler())
	t.Cleanup(srv.Close)
	return &ctlEnv{url: srv.URL, env: env}
}

func (e *ctlEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--url", e.url, "--token", "tok"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *ctlEnv) saveSequence(t *testing.T) *core.Sequence {
	t.Helper()
	seq, _, err := e.env.Service.SaveSequence(context.Background(), service.SequenceInput{
		Name: "login", Actions: []core.Action{servicetest.ClickOK(0)},
	})
	require.NoError(t, err)
	return seq
}

func TestSequencesCommands(t *testing.T) {
	e := newCtlEnv(t)

	out, err := e.run(t, "sequences", "list")
	require.NoError(t, err)
	assert.Equal(t, "No sequences saved\n", out)

	file := filepath.Join(t.TempDir(), "seq.json")
	data, err := json.Marshal(service.SequenceInput{Name: "login", Actions: []core.Action{servicetest.ClickOK(5)}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o600))

	out, err = e.run(t, "sequences", "save", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved login")
	assert.Contains(t, out, "1 steps")

	seqs, err := e.env.Service.ListSequences(context.Background())
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	id := seqs[0].ID

	out, err = e.run(t, "sequences", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, id)

	out, err = e.run(t, "seq", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "AutomationId='ok'")

	out, err = e.run(t, "--json", "sequences", "show", id)
	require.NoError(t, err)
	var resp api.SequenceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, id, resp.ID)

	out, err = e.run(t, "sequences", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted sequence")

	_, err = e.run(t, "sequences", "show", id)
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestRecordCommand(t *testing.T) {
	e := newCtlEnv(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	file := filepath.Join(t.TempDir(), "events.json")
	data, err := json.Marshal(map[string]any{
		"name":         "search",
		"attached_pid": servicetest.AppPID,
		"events": []map[string]any{
			{"kind": "click", "timestamp": t0, "x": 60, "y": 20, "button": "left", "process_id": servicetest.AppPID},
			{"kind": "key", "timestamp": t0.Add(time.Second), "text": "go", "process_id": servicetest.AppPID},
			{"kind": "key", "timestamp": t0.Add(2 * time.Second), "enter": true, "process_id": servicetest.AppPID},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o600))

	out, err := e.run(t, "sequences", "record", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded search")
	assert.Contains(t, out, "go↵")
}

func TestPlayWaitPrintsSteps(t *testing.T) {
	e := newCtlEnv(t)
	seq := e.saveSequence(t)

	out, err := e.run(t, "play", seq.ID, "--repeat", "2", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Session ")
	assert.Contains(t, out, "[R2]")
	assert.Len(t, e.env.Button.Clicks(), 2)

	out, err = e.run(t, "sessions", "list", "--sequence", seq.ID)
	require.NoError(t, err)
	assert.Contains(t, out, core.TriggerManual)

	out, err = e.run(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "Idle\n", out)

	out, err = e.run(t, "stop")
	require.NoError(t, err)
	assert.Equal(t, "Nothing is playing\n", out)

	_, err = e.run(t, "play", "missing")
	assert.True(t, isNotFound(err))
}

func TestPlayWaitReportsFailures(t *testing.T) {
	e := newCtlEnv(t)
	missing := servicetest.ClickOK(0)
	missing.Element = &core.ElementIdentity{AutomationID: "missing", ProcessName: "app"}
	seq, _, err := e.env.Service.SaveSequence(context.Background(), service.SequenceInput{
		Name: "broken", Actions: []core.Action{missing},
	})
	require.NoError(t, err)

	out, err := e.run(t, "play", seq.ID, "--wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 steps failed")
	assert.Contains(t, out, "FAIL")
}

func TestLaunchCommand(t *testing.T) {
	e := newCtlEnv(t)

	out, err := e.run(t, "launch", os.Args[0], "--", "-test.run=^$")
	require.NoError(t, err)
	assert.Contains(t, out, "Launched ")
	assert.Contains(t, out, "(pid ")

	_, err = e.run(t, "launch", "/nonexistent/app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch_failed")
}

func TestJobsAndSchedulerCommands(t *testing.T) {
	e := newCtlEnv(t)
	seq := e.saveSequence(t)

	_, err := e.run(t, "jobs", "create", "--sequence", seq.ID)
	require.Error(t, err)

	out, err := e.run(t, "jobs", "create", "--name", "poll", "--sequence", seq.ID, "--type", "interval", "--every", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "every 15m")

	jobs, err := e.env.Service.ListJobs(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	id := jobs[0].ID

	_, err = e.run(t, "jobs", "create", "--name", "bad", "--sequence", seq.ID, "--at", "tomorrow")
	require.Error(t, err)

	out, err = e.run(t, "jobs", "pause", id)
	require.NoError(t, err)
	assert.Contains(t, out, "is paused")

	out, err = e.run(t, "jobs", "list", "--status", "paused")
	require.NoError(t, err)
	assert.Contains(t, out, "poll")

	out, err = e.run(t, "jobs", "resume", id)
	require.NoError(t, err)
	assert.Contains(t, out, "is active")

	out, err = e.run(t, "jobs", "run", id)
	require.NoError(t, err)
	assert.Contains(t, out, "started")
	require.Eventually(t, func() bool {
		job, err := e.env.Service.GetJob(context.Background(), id)
		return err == nil && job.RunCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	out, err = e.run(t, "scheduler", "start")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduler running")
	assert.Contains(t, out, "1 active jobs")

	out, err = e.run(t, "scheduler", "log", "-n", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "starting job 'poll'")
	assert.Contains(t, out, "scheduler started")

	out, err = e.run(t, "scheduler", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduler stopped")

	out, err = e.run(t, "jobs", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted job")
	out, err = e.run(t, "jobs", "list")
	require.NoError(t, err)
	assert.Equal(t, "No jobs found\n", out)
}

func TestScheduleLabel(t *testing.T) {
	at := "2024-05-01T02:00:00Z"
	assert.Equal(t, "every 5m", scheduleLabel(api.JobResponse{ScheduleType: "interval", IntervalMins: 5}))
	assert.Equal(t, "daily "+at, scheduleLabel(api.JobResponse{ScheduleType: "daily", RunAt: &at}))
	assert.Equal(t, "hourly", scheduleLabel(api.JobResponse{ScheduleType: "hourly"}))
}

func TestScreenshotsFlagDescribesFailureCapture(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	for _, path := range [][]string{{"play"}, {"jobs", "create"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		flag := cmd.Flags().Lookup("screenshots")
		require.NotNil(t, flag, path)
		assert.Equal(t, "capture a screenshot when a step fails", flag.Usage)
	}
}
