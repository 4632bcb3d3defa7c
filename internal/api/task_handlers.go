package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/tasks"
	"github.com/archoctopus/archoctopus-go/internal/util"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	includeHidden := r.URL.Query().Get("all") == "true"
	list := s.app.Tasks().List(includeHidden)
	for _, t := range list {
		t.Tags = s.store.TaskTags(t.ID)
	}
	RespondWithJSON(w, http.StatusOK, list)
}

// handleSubmitTask starts a task. An already downloaded URL answers 409
// with the existing task unless rerun is set.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL   string `json:"url"`
		Rerun bool   `json:"rerun"`
	}
	if !decode(w, r, &payload) {
		return
	}

	task, err := s.app.Tasks().Submit(r.Context(), payload.URL, payload.Rerun)
	if errors.Is(err, tasks.ErrAlreadyDownloaded) {
		RespondWithJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"task":  task,
		})
		return
	}
	if err != nil {
		respondWithErr(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleListRunning(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Tasks().Running())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	task, err := s.app.Tasks().Get(id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	task.Tags = s.store.TaskTags(id)

	resp := struct {
		*models.Task
		Counts  map[string]int `json:"counts"`
		Running *tasks.Status  `json:"running,omitempty"`
	}{Task: task, Counts: map[string]int{}}
	for status, n := range s.store.CountItems(id) {
		resp.Counts[status.String()] = n
	}
	if st, ok := s.app.Tasks().Status(id); ok {
		resp.Running = &st
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	if err := s.app.Tasks().Delete(id); err != nil {
		respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	items, err := s.app.Tasks().Items(id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	var payload struct {
		Action string `json:"action"`
	}
	if !decode(w, r, &payload) {
		return
	}

	m := s.app.Tasks()
	var err error
	switch payload.Action {
	case "pause":
		err = m.Pause(id)
	case "resume":
		err = m.Resume(id)
	case "stop":
		err = m.Stop(id)
	case "refresh":
		err = m.Refresh(r.Context(), id)
	default:
		RespondWithError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if err != nil {
		respondWithErr(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleExportTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	task, err := s.app.Tasks().Get(id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	if task.Dir == "" {
		RespondWithError(w, http.StatusConflict, "Task has no download directory yet")
		return
	}

	name := util.SanitizeFolderName(filepath.Base(task.Dir)) + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := s.app.Tasks().Export(r.Context(), id, w); err != nil {
		// Headers are gone by now; all we can do is log and cut the stream.
		s.app.Logger().Error("export failed", zap.Int64("task_id", id), zap.Error(err))
	}
}
