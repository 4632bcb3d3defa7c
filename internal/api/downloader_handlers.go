package api

import "net/http"

// handleDownloadsAction applies an action to every running task.
func (s *Server) handleDownloadsAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
	}
	if !decode(w, r, &payload) {
		return
	}

	m := s.app.Tasks()
	switch payload.Action {
	case "pause_all":
		m.PauseAll()
	case "resume_all":
		m.ResumeAll()
	case "stop_all":
		m.StopAll()
	default:
		RespondWithError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
