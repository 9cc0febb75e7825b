package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"clickreplay/internal/core"
	"clickreplay/internal/launcher"
	"clickreplay/internal/playback"
	"clickreplay/internal/service"
	"clickreplay/internal/store"
)

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

// writeServiceError maps domain errors to HTTP responses and logs the rest.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, op string, args ...any) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, service.ErrEmptySequence):
		writeError(w, http.StatusBadRequest, "empty_sequence", err.Error())
	case errors.Is(err, store.ErrSequenceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "sequence not found")
	case errors.Is(err, store.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, playback.ErrAlreadyPlaying):
		writeError(w, http.StatusConflict, "conflict", "a playback is already running")
	case errors.Is(err, core.ErrSchedulerBusy):
		writeError(w, http.StatusConflict, "conflict", "another job is running, try again shortly")
	case errors.Is(err, launcher.ErrLaunchFailed):
		writeError(w, http.StatusUnprocessableEntity, "launch_failed", err.Error())
	default:
		s.logger.Error(op, append(args, "err", err)...)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}
