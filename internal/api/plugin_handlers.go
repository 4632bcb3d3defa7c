package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleListPlugins lists built-in and scripted strategies. Scripts with
// broken headers are left out and logged.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.app.Registry().Plugins()
	if err != nil {
		s.app.Logger().Warn("list plugins", zap.Error(err))
	}
	RespondWithJSON(w, http.StatusOK, plugins)
}

func (s *Server) handleReloadPlugins(w http.ResponseWriter, r *http.Request) {
	s.app.Registry().Purge()
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Plugin cache cleared"})
}
