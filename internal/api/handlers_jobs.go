package api

import (
	"net/http"
	"strings"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/service"

	"github.com/go-chi/chi/v5"
)

// JobResponse is the JSON form of a scheduled job.
type JobResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	SequenceID      string  `json:"sequence_id"`
	ScheduleType    string  `json:"schedule_type"`
	Status          string  `json:"status"`
	RunAt           *string `json:"run_at,omitempty"`
	IntervalMins    int     `json:"interval_mins,omitempty"`
	RepeatCount     int     `json:"repeat_count"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	StopOnError     bool    `json:"stop_on_error"`
	Screenshots     bool    `json:"screenshots"`
	LastRunAt       *string `json:"last_run_at,omitempty"`
	NextRunAt       *string `json:"next_run_at,omitempty"`
	RunCount        int     `json:"run_count"`
	LastResult      string  `json:"last_result,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func jobToResponse(job *core.ScheduledJob) JobResponse {
	return JobResponse{
		ID:              job.ID,
		Name:            job.Name,
		SequenceID:      job.SequenceID,
		ScheduleType:    string(job.ScheduleType),
		Status:          string(job.Status),
		RunAt:           formatOptional(job.RunAt),
		IntervalMins:    job.IntervalMins,
		RepeatCount:     job.RepeatCount,
		SpeedMultiplier: job.SpeedMultiplier,
		StopOnError:     job.StopOnError,
		Screenshots:     job.Screenshots,
		LastRunAt:       formatOptional(job.LastRunAt),
		NextRunAt:       formatOptional(job.NextRunAt),
		RunCount:        job.RunCount,
		LastResult:      job.LastResult,
		CreatedAt:       job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req service.JobInput
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.svc.CreateJob(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, "create job")
		return
	}
	writeJSON(w, http.StatusCreated, jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statusFilter *core.JobStatus
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		st := core.JobStatus(status)
		switch st {
		case core.JobStatusActive, core.JobStatusPaused, core.JobStatusCompleted, core.JobStatusFailed:
			statusFilter = &st
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "status must be active, paused, completed or failed")
			return
		}
	}
	jobs, err := s.svc.ListJobs(r.Context(), statusFilter)
	if err != nil {
		s.writeServiceError(w, err, "list jobs")
		return
	}
	res := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		res = append(res, jobToResponse(j))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.svc.GetJob(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "load job", "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	var req service.JobInput
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.svc.UpdateJob(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, err, "update job", "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.svc.DeleteJob(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "delete job", "job_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.svc.RunJob(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "start job", "job_id", id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.svc.PauseJob(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "pause job", "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.svc.ResumeJob(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "resume job", "job_id", id)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}
