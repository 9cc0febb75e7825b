package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/launcher"
	"clickreplay/internal/playback"
	"clickreplay/internal/service"
	"clickreplay/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverVersion = "1.0.0"

// MCPServer exposes playback and scheduling as MCP tools.
type MCPServer struct {
	svc    *service.Service
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates the server and registers its tools.
func NewMCPServer(svc *service.Service, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		svc:    svc,
		logger: logger,
		server: server.NewMCPServer("clickreplay", serverVersion, server.WithToolCapabilities(true)),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the client disconnects.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.server)
}

// HTTPHandler returns the streamable HTTP transport for mounting under /mcp.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("list_sequences",
		mcp.WithDescription("List saved action sequences"),
	), s.handleListSequences)

	s.server.AddTool(mcp.NewTool("get_sequence",
		mcp.WithDescription("Show the steps of a sequence"),
		mcp.WithString("sequence_id", mcp.Required(), mcp.Description("Sequence ID")),
	), s.handleGetSequence)

	s.server.AddTool(mcp.NewTool("play_sequence",
		mcp.WithDescription("Start replaying a sequence in the background"),
		mcp.WithString("sequence_id", mcp.Required(), mcp.Description("Sequence ID")),
		mcp.WithNumber("repeat_count", mcp.Description("How many times to replay, default 1"), mcp.Min(1), mcp.Max(1000)),
		mcp.WithNumber("speed", mcp.Description("Speed multiplier applied to recorded delays, default 1"), mcp.Min(0.1), mcp.Max(10)),
		mcp.WithBoolean("stop_on_error", mcp.Description("Stop at the first failed step")),
		mcp.WithBoolean("screenshots", mcp.Description("Capture a screenshot when a step fails")),
		mcp.WithNumber("process_id", mcp.Description("Restrict element search and clicks to this process")),
	), s.handlePlaySequence)

	s.server.AddTool(mcp.NewTool("playback_status",
		mcp.WithDescription("Show progress of the current or last playback"),
	), s.handlePlaybackStatus)

	s.server.AddTool(mcp.NewTool("stop_playback",
		mcp.WithDescription("Cancel the running playback"),
	), s.handleStopPlayback)

	s.server.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recorded playback sessions, newest first"),
		mcp.WithString("sequence_id", mcp.Description("Only sessions of this sequence")),
		mcp.WithString("job_id", mcp.Description("Only sessions started by this job")),
		mcp.WithNumber("limit", mcp.Description("Number of sessions, default 20"), mcp.Min(1), mcp.Max(100)),
	), s.handleListSessions)

	s.server.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Show step results of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleGetSession)

	s.server.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List scheduled jobs"),
		mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("active", "paused", "completed", "failed")),
	), s.handleListJobs)

	s.server.AddTool(mcp.NewTool("create_job",
		mcp.WithDescription("Schedule a sequence. once needs run_at, interval needs interval_mins, daily uses the time of day of run_at"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name")),
		mcp.WithString("sequence_id", mcp.Required(), mcp.Description("Sequence to replay")),
		mcp.WithString("schedule_type", mcp.Required(), mcp.Enum("once", "interval", "hourly", "daily")),
		mcp.WithString("run_at", mcp.Description("RFC3339 time")),
		mcp.WithNumber("interval_mins", mcp.Description("Minutes between runs"), mcp.Min(1)),
		mcp.WithNumber("repeat_count", mcp.Description("Replays per run, default 1"), mcp.Min(1), mcp.Max(1000)),
		mcp.WithNumber("speed", mcp.Description("Speed multiplier, default 1"), mcp.Min(0.1), mcp.Max(10)),
		mcp.WithBoolean("stop_on_error", mcp.Description("Stop at the first failed step")),
		mcp.WithBoolean("screenshots", mcp.Description("Capture a screenshot when a step fails")),
		mcp.WithBoolean("paused", mcp.Description("Create the job paused")),
	), s.handleCreateJob)

	s.server.AddTool(mcp.NewTool("delete_job",
		mcp.WithDescription("Delete a scheduled job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID")),
	), s.handleDeleteJob)

	s.server.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run a job now. Fails when another job is running"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID")),
	), s.handleRunJob)

	s.server.AddTool(mcp.NewTool("pause_job",
		mcp.WithDescription("Pause a job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID")),
	), s.jobStatusHandler(core.JobStatusPaused))

	s.server.AddTool(mcp.NewTool("resume_job",
		mcp.WithDescription("Reactivate a job and recompute its next run"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID")),
	), s.jobStatusHandler(core.JobStatusActive))

	s.server.AddTool(mcp.NewTool("scheduler_status",
		mcp.WithDescription("Show whether the scheduler is running and when the next job is due"),
	), s.handleSchedulerStatus)

	s.server.AddTool(mcp.NewTool("set_scheduler",
		mcp.WithDescription("Start or stop the scheduler"),
		mcp.WithBoolean("running", mcp.Required(), mcp.Description("true to start, false to stop")),
	), s.handleSetScheduler)

	s.server.AddTool(mcp.NewTool("scheduler_log",
		mcp.WithDescription("Recent scheduler log lines"),
		mcp.WithNumber("tail", mcp.Description("Number of lines, default 50"), mcp.Min(1)),
	), s.handleSchedulerLog)

	s.server.AddTool(mcp.NewTool("launch_application",
		mcp.WithDescription("Start the application under test and return its process id for play_sequence process_id"),
		mcp.WithString("target", mcp.Required(), mcp.Description("Executable path or name on PATH")),
		mcp.WithString("args", mcp.Description("Space separated arguments")),
	), s.handleLaunchApplication)

	s.logger.Info("MCP tools registered", "count", 17)
}

// errorResult turns a service error into a tool error; unexpected errors are logged.
func (s *MCPServer) errorResult(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmptySequence),
		errors.Is(err, store.ErrSequenceNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, playback.ErrAlreadyPlaying),
		errors.Is(err, core.ErrSchedulerBusy),
		errors.Is(err, launcher.ErrLaunchFailed):
	default:
		s.logger.Error(op, "err", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func (s *MCPServer) handleListSequences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seqs, err := s.svc.ListSequences(ctx)
	if err != nil {
		return s.errorResult("list sequences", err), nil
	}
	if len(seqs) == 0 {
		return mcp.NewToolResultText("No sequences saved"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d sequences:\n\n", len(seqs))
	for _, seq := range seqs {
		fmt.Fprintf(&b, "%s  %s (%d steps)\n", seq.ID, seq.Name, len(seq.Actions))
		if seq.Description != "" {
			fmt.Fprintf(&b, "  %s\n", truncateString(seq.Description, 80))
		}
		fmt.Fprintf(&b, "  updated %s\n", s.formatTime(&seq.UpdatedAt))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetSequence(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "sequence_id", "")
	seq, err := s.svc.GetSequence(ctx, id)
	if err != nil {
		return s.errorResult("get sequence", err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sequence %s: %s\n", seq.ID, seq.Name)
	for _, a := range seq.Actions {
		b.WriteString(a.Summary())
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handlePlaySequence(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "sequence_id", "")
	in := service.PlayInput{
		RepeatCount:     int(mcp.ParseFloat64(request, "repeat_count", 1)),
		SpeedMultiplier: mcp.ParseFloat64(request, "speed", 1),
		StopOnError:     mcp.ParseBoolean(request, "stop_on_error", false),
		Screenshots:     mcp.ParseBoolean(request, "screenshots", false),
	}
	if pid := mcp.ParseFloat64(request, "process_id", 0); pid > 0 {
		scope := uint32(pid)
		in.ProcessScope = &scope
	}
	sessionID, err := s.svc.PlaySequence(ctx, id, in)
	if err != nil {
		return s.errorResult("play sequence", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Playback started\nSession ID: %s", sessionID)), nil
}

func (s *MCPServer) handleLaunchApplication(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.LaunchApplication(ctx, service.LaunchInput{
		Target: mcp.ParseString(request, "target", ""),
		Args:   strings.Fields(mcp.ParseString(request, "args", "")),
	})
	if err != nil {
		return s.errorResult("launch application", err), nil
	}
	if res.PID == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Launched %s via %s; process id unknown", res.Target, res.Method)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Launched %s\nProcess ID: %d", res.Target, res.PID)), nil
}

func (s *MCPServer) handlePlaybackStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.svc.PlaybackStatus()
	if st.SessionID == "" {
		return mcp.NewToolResultText("No playback has run yet"), nil
	}
	state := "finished"
	if st.Playing {
		state = "playing"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s %s: %d/%d steps, %d failed",
		st.SessionID, state, st.Completed, st.Planned, st.Failed)), nil
}

func (s *MCPServer) handleStopPlayback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.svc.StopPlayback() {
		return mcp.NewToolResultText("Nothing is playing"), nil
	}
	return mcp.NewToolResultText("Stop requested"), nil
}

func (s *MCPServer) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.svc.ListSessions(ctx, store.SessionFilter{
		SequenceID: mcp.ParseString(request, "sequence_id", ""),
		JobID:      mcp.ParseString(request, "job_id", ""),
		Limit:      int(mcp.ParseFloat64(request, "limit", 20)),
	})
	if err != nil {
		return s.errorResult("list sessions", err), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("No sessions recorded"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d sessions:\n\n", len(recs))
	for _, rec := range recs {
		sess := rec.Session
		fmt.Fprintf(&b, "[%s] %s  %s  %s\n", sessionIcon(sess), sess.ID, rec.Trigger, s.formatTime(&sess.StartedAt))
		fmt.Fprintf(&b, "    %s\n", sess.Summary())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "session_id", "")
	rec, err := s.svc.GetSession(ctx, id)
	if err != nil {
		return s.errorResult("get session", err), nil
	}
	sess := rec.Session
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s)\n", sess.ID, rec.Trigger)
	fmt.Fprintf(&b, "%s, element %d / coordinates %d", sess.Summary(), sess.ElementSteps(), sess.CoordinateSteps())
	if sess.WasCancelled {
		b.WriteString(", cancelled")
	}
	b.WriteString("\n\n")
	for _, step := range sess.Steps {
		b.WriteString(step.String())
		b.WriteString("\n")
	}
	for _, ex := range sess.UnhandledExceptions {
		b.WriteString("\nUnhandled: ")
		b.WriteString(ex.FullDisplay())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter *core.JobStatus
	if status := mcp.ParseString(request, "status", ""); status != "" {
		st := core.JobStatus(status)
		filter = &st
	}
	jobs, err := s.svc.ListJobs(ctx, filter)
	if err != nil {
		return s.errorResult("list jobs", err), nil
	}
	if len(jobs) == 0 {
		return mcp.NewToolResultText("No jobs found"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d jobs:\n\n", len(jobs))
	for _, j := range jobs {
		b.WriteString(s.describeJob(j))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleCreateJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := service.JobInput{
		Name:            mcp.ParseString(request, "name", ""),
		SequenceID:      mcp.ParseString(request, "sequence_id", ""),
		ScheduleType:    core.ScheduleType(mcp.ParseString(request, "schedule_type", "")),
		IntervalMins:    int(mcp.ParseFloat64(request, "interval_mins", 0)),
		RepeatCount:     int(mcp.ParseFloat64(request, "repeat_count", 1)),
		SpeedMultiplier: mcp.ParseFloat64(request, "speed", 1),
		StopOnError:     mcp.ParseBoolean(request, "stop_on_error", false),
		Screenshots:     mcp.ParseBoolean(request, "screenshots", false),
		Paused:          mcp.ParseBoolean(request, "paused", false),
	}
	if raw := mcp.ParseString(request, "run_at", ""); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid run_at: %v", err)), nil
		}
		in.RunAt = &at
	}
	job, err := s.svc.CreateJob(ctx, in)
	if err != nil {
		return s.errorResult("create job", err), nil
	}
	return mcp.NewToolResultText("Job created\n" + s.describeJob(job)), nil
}

func (s *MCPServer) handleDeleteJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "job_id", "")
	if err := s.svc.DeleteJob(ctx, id); err != nil {
		return s.errorResult("delete job", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Job deleted: %s", id)), nil
}

func (s *MCPServer) handleRunJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "job_id", "")
	if err := s.svc.RunJob(ctx, id); err != nil {
		return s.errorResult("run job", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Job started: %s", id)), nil
}

func (s *MCPServer) jobStatusHandler(status core.JobStatus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "job_id", "")
		var (
			job *core.ScheduledJob
			err error
		)
		if status == core.JobStatusPaused {
			job, err = s.svc.PauseJob(ctx, id)
		} else {
			job, err = s.svc.ResumeJob(ctx, id)
		}
		if err != nil {
			return s.errorResult("set job status", err), nil
		}
		return mcp.NewToolResultText("Job updated\n" + s.describeJob(job)), nil
	}
}

func (s *MCPServer) handleSchedulerStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.SchedulerStatus(ctx)
	if err != nil {
		return s.errorResult("scheduler status", err), nil
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Scheduler %s\nTime zone: %s\nActive jobs: %d\nNext due: %s",
		state, st.Location, st.ActiveJobs, s.formatTime(st.NextRunAt))), nil
}

func (s *MCPServer) handleSetScheduler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if mcp.ParseBoolean(request, "running", false) {
		s.svc.StartScheduler()
	} else {
		s.svc.StopScheduler()
	}
	return s.handleSchedulerStatus(ctx, request)
}

func (s *MCPServer) handleSchedulerLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines := s.svc.SchedulerLog().Tail(int(mcp.ParseFloat64(request, "tail", 50)))
	if len(lines) == 0 {
		return mcp.NewToolResultText("Scheduler log is empty"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *MCPServer) describeJob(j *core.ScheduledJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s\n", jobIcon(j.Status), j.ID, j.Name)
	fmt.Fprintf(&b, "  Sequence: %s\n", j.SequenceID)
	switch j.ScheduleType {
	case core.ScheduleInterval:
		fmt.Fprintf(&b, "  Schedule: every %d min\n", j.IntervalMins)
	case core.ScheduleOnce, core.ScheduleDaily:
		fmt.Fprintf(&b, "  Schedule: %s at %s\n", j.ScheduleType, s.formatTime(j.RunAt))
	default:
		fmt.Fprintf(&b, "  Schedule: %s\n", j.ScheduleType)
	}
	fmt.Fprintf(&b, "  Next run: %s\n", s.formatTime(j.NextRunAt))
	if j.RunCount > 0 {
		fmt.Fprintf(&b, "  Runs: %d, last %s: %s\n", j.RunCount, s.formatTime(j.LastRunAt), j.LastResult)
	}
	return b.String()
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.svc.Location()).Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func jobIcon(status core.JobStatus) string {
	switch status {
	case core.JobStatusActive:
		return "▶️"
	case core.JobStatusPaused:
		return "⏸️"
	case core.JobStatusCompleted:
		return "✅"
	case core.JobStatusFailed:
		return "❌"
	default:
		return "❓"
	}
}

func sessionIcon(sess *core.TestSession) string {
	switch {
	case sess.WasCancelled:
		return "🚫"
	case sess.FailureCount() > 0:
		return "❌"
	default:
		return "✅"
	}
}
