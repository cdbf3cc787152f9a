package api

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Status  string `json:"status"`
	Members int    `json:"members"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.Members.Count(r.Context())
	if err != nil {
		s.Log.Error("status: count members", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Status:  "degraded",
			Uptime:  time.Since(s.StartTime).Truncate(time.Second).String(),
			Version: s.Version,
		})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Members: n,
		Uptime:  time.Since(s.StartTime).Truncate(time.Second).String(),
		Version: s.Version,
	})
}
