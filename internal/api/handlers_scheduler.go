package api

import (
	"net/http"
	"strings"

	"clickreplay/internal/service"
)

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.SchedulerStatus(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "load scheduler status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStartScheduler(w http.ResponseWriter, r *http.Request) {
	s.svc.StartScheduler()
	s.handleSchedulerStatus(w, r)
}

func (s *Server) handleStopScheduler(w http.ResponseWriter, r *http.Request) {
	s.svc.StopScheduler()
	s.handleSchedulerStatus(w, r)
}

// handleSchedulerLog returns recent scheduler log lines as text. With follow=1
// it keeps the response open and streams new lines until the client leaves.
func (s *Server) handleSchedulerLog(w http.ResponseWriter, r *http.Request) {
	tail := parseIntDefault(r.URL.Query().Get("tail"), 0)
	follow := strings.EqualFold(r.URL.Query().Get("follow"), "1") || strings.EqualFold(r.URL.Query().Get("follow"), "true")
	feed := s.svc.SchedulerLog()

	if !follow {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, line := range feed.Tail(tail) {
			_, _ = w.Write([]byte(line + "\n"))
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported", "streaming not supported")
		return
	}
	lines, cancel := feed.Follow()
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	for _, line := range feed.Tail(tail) {
		_, _ = w.Write([]byte(line + "\n"))
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.PlaybackStatus())
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	stopped := s.svc.StopPlayback()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var in service.LaunchInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := s.svc.LaunchApplication(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "launch application", "target", in.Target)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
