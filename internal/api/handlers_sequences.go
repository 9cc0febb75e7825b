package api

import (
	"net/http"
	"time"

	"clickreplay/internal/core"
	"clickreplay/internal/service"

	"github.com/go-chi/chi/v5"
)

// SequenceResponse is the JSON form of a sequence. Actions are omitted in listings.
type SequenceResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StepCount   int           `json:"step_count"`
	Actions     []core.Action `json:"actions,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

func sequenceToResponse(seq *core.Sequence, withActions bool) SequenceResponse {
	res := SequenceResponse{
		ID:          seq.ID,
		Name:        seq.Name,
		Description: seq.Description,
		StepCount:   len(seq.Actions),
		CreatedAt:   seq.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   seq.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if withActions {
		res.Actions = seq.Actions
		if res.Actions == nil {
			res.Actions = []core.Action{}
		}
	}
	return res
}

func (s *Server) handleListSequences(w http.ResponseWriter, r *http.Request) {
	seqs, err := s.svc.ListSequences(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "list sequences")
		return
	}
	res := make([]SequenceResponse, 0, len(seqs))
	for _, seq := range seqs {
		res = append(res, sequenceToResponse(seq, false))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSaveSequence(w http.ResponseWriter, r *http.Request) {
	var req service.SequenceInput
	if !decodeJSON(w, r, &req) {
		return
	}
	seq, created, err := s.svc.SaveSequence(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, "save sequence")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sequenceToResponse(seq, true))
}

func (s *Server) handleRecordSequence(w http.ResponseWriter, r *http.Request) {
	var req service.RecordInput
	if !decodeJSON(w, r, &req) {
		return
	}
	seq, err := s.svc.RecordSequence(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, "record sequence")
		return
	}
	writeJSON(w, http.StatusCreated, sequenceToResponse(seq, true))
}

func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sequenceID")
	seq, err := s.svc.GetSequence(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "load sequence", "sequence_id", id)
		return
	}
	writeJSON(w, http.StatusOK, sequenceToResponse(seq, true))
}

func (s *Server) handleUpdateSequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sequenceID")
	var req service.SequenceInput
	if !decodeJSON(w, r, &req) {
		return
	}
	seq, err := s.svc.UpdateSequence(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, err, "update sequence", "sequence_id", id)
		return
	}
	writeJSON(w, http.StatusOK, sequenceToResponse(seq, true))
}

func (s *Server) handleDeleteSequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sequenceID")
	if err := s.svc.DeleteSequence(r.Context(), id); err != nil {
		s.writeServiceError(w, err, "delete sequence", "sequence_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaySequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sequenceID")
	var req service.PlayInput
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	sessionID, err := s.svc.PlaySequence(r.Context(), id, req)
	if err != nil {
		s.writeServiceError(w, err, "start playback", "sequence_id", id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}
