package api_test

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/testutil"
)

func TestTaskLifecycle(t *testing.T) {
	server, app := setupTestServer(t)
	router := server.Router()
	site := testutil.NewSite(t, 3)

	rr := doRequest(t, router, http.MethodPost, "/api/tasks", map[string]any{"url": site.ProjectURL()})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	task := decodeBody[models.Task](t, rr)
	waitIdle(t, app, task.ID)

	t.Run("Get Task", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		got := decodeBody[struct {
			models.Task
			Counts map[string]int `json:"counts"`
		}](t, rr)
		assert.Equal(t, "Casa Azul", got.Name)
		assert.Equal(t, 3, got.TotalCount)
		assert.Equal(t, 3, got.DownloadCount)
		assert.Equal(t, 3, got.Counts["downloaded"])
	})

	t.Run("List Items", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/tasks/%d/items", task.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decodeBody[[]models.Item](t, rr), 3)
	})

	t.Run("Submit Again Conflicts", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodPost, "/api/tasks", map[string]any{"url": site.ProjectURL()})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), `"task"`)
	})

	t.Run("Export", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/tasks/%d/export", task.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
		require.NoError(t, err)
		var files int
		for _, f := range zr.File {
			if !f.FileInfo().IsDir() {
				files++
			}
		}
		assert.Equal(t, 3, files)
	})

	t.Run("Action On Idle Task", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/tasks/%d/action", task.ID), map[string]string{"action": "pause"})
		assert.Equal(t, http.StatusConflict, rr.Code)
		rr = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/tasks/%d/action", task.ID), map[string]string{"action": "explode"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Refresh", func(t *testing.T) {
		site.SetImages(5)
		rr := doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/tasks/%d/action", task.ID), map[string]string{"action": "refresh"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		waitIdle(t, app, task.ID)
		assert.Equal(t, 5, site.Hits())
	})

	t.Run("Delete Hides Task", func(t *testing.T) {
		rr := doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), nil)
		require.Equal(t, http.StatusNoContent, rr.Code)
		app.Store().Flush()

		rr = doRequest(t, router, http.MethodGet, "/api/tasks", nil)
		assert.Empty(t, decodeBody[[]models.Task](t, rr))
		rr = doRequest(t, router, http.MethodGet, "/api/tasks?all=true", nil)
		assert.Len(t, decodeBody[[]models.Task](t, rr), 1)
	})
}

func TestTaskHandlerErrors(t *testing.T) {
	server, _ := setupTestServer(t)
	router := server.Router()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid url", http.MethodPost, "/api/tasks", map[string]string{"url": "ftp://nowhere"}, http.StatusBadRequest},
		{"bad payload", http.MethodPost, "/api/tasks", "not an object", http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/api/tasks/99", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/tasks/abc", nil, http.StatusBadRequest},
		{"items of unknown task", http.MethodGet, "/api/tasks/99/items", nil, http.StatusNotFound},
		{"delete unknown task", http.MethodDelete, "/api/tasks/99", nil, http.StatusNotFound},
		{"export unknown task", http.MethodGet, "/api/tasks/99/export", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}
