package api

import (
	"net/http"

	"clickreplay/internal/core"
	"clickreplay/internal/store"

	"github.com/go-chi/chi/v5"
)

// SessionResponse is a stored session with its aggregate counts.
type SessionResponse struct {
	*core.TestSession
	SequenceID   *string `json:"sequence_id,omitempty"`
	JobID        *string `json:"job_id,omitempty"`
	Trigger      string  `json:"trigger"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	DurationMs   int64   `json:"duration_ms"`
}

func sessionToResponse(rec *core.SessionRecord, withSteps bool) SessionResponse {
	sess := *rec.Session
	res := SessionResponse{
		SequenceID:   rec.SequenceID,
		JobID:        rec.JobID,
		Trigger:      rec.Trigger,
		SuccessCount: sess.SuccessCount(),
		FailureCount: sess.FailureCount(),
		DurationMs:   sess.TotalDuration().Milliseconds(),
	}
	if !withSteps {
		sess.Steps = nil
	}
	res.TestSession = &sess
	return res
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request, filter store.SessionFilter) {
	q := r.URL.Query()
	filter.Limit = parseIntDefault(q.Get("limit"), 100)
	filter.Offset = parseIntDefault(q.Get("offset"), 0)
	recs, err := s.svc.ListSessions(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err, "list sessions")
		return
	}
	res := make([]SessionResponse, 0, len(recs))
	for _, rec := range recs {
		res = append(res, sessionToResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.listSessions(w, r, store.SessionFilter{SequenceID: q.Get("sequence_id"), JobID: q.Get("job_id")})
}

func (s *Server) handleListSequenceSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sequenceID")
	if _, err := s.svc.GetSequence(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "load sequence", "sequence_id", id)
		return
	}
	s.listSessions(w, r, store.SessionFilter{SequenceID: id})
}

func (s *Server) handleListJobSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := s.svc.GetJob(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "load job", "job_id", id)
		return
	}
	s.listSessions(w, r, store.SessionFilter{JobID: id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	rec, err := s.svc.GetSession(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "load session", "session_id", id)
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(rec, true))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.svc.DeleteSession(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "delete session", "session_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
