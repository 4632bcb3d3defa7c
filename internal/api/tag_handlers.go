package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.store.ListTags())
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	tagID, ok := idParam(w, r, "tagID")
	if !ok {
		return
	}
	s.store.DeleteTag(tagID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddTagToTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.taskParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &payload) {
		return
	}
	tag, err := s.store.AddTagToTask(taskID, payload.Name)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleSetTaskTags(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.taskParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Tags []string `json:"tags"`
	}
	if !decode(w, r, &payload) {
		return
	}
	names, err := s.store.SetTaskTags(taskID, payload.Tags)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string][]string{"tags": names})
}

func (s *Server) handleRemoveTagFromTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.taskParam(w, r)
	if !ok {
		return
	}
	s.store.RemoveTagFromTask(taskID, chi.URLParam(r, "tag"))
	w.WriteHeader(http.StatusNoContent)
}

// taskParam parses {taskID} and checks that the task exists.
func (s *Server) taskParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return 0, false
	}
	if _, err := s.app.Tasks().Get(id); err != nil {
		respondWithErr(w, err)
		return 0, false
	}
	return id, true
}
