// Package api is the local HTTP control surface: task submission and
// control, tags, plugins, background jobs, progress over websocket and
// Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/archoctopus/archoctopus-go/internal/core"
	"github.com/archoctopus/archoctopus-go/internal/metrics"
	"github.com/archoctopus/archoctopus-go/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	metrics.Init()
	return &Server{app: app, store: app.Store()}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(Instrument)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", s.handleGetVersion)
	r.Get("/api/config", s.handleGetConfig)

	r.Route("/api", func(r chi.Router) {
		// Exports stream whole directories, so they skip the timeout.
		r.Get("/tasks/{taskID}/export", s.handleExportTask)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/tasks", s.handleListTasks)
			r.Post("/tasks", s.handleSubmitTask)
			r.Get("/tasks/running", s.handleListRunning)
			r.Get("/tasks/{taskID}", s.handleGetTask)
			r.Delete("/tasks/{taskID}", s.handleDeleteTask)
			r.Get("/tasks/{taskID}/items", s.handleListItems)
			r.Post("/tasks/{taskID}/action", s.handleTaskAction)

			// Task Tagging Routes
			r.Put("/tasks/{taskID}/tags", s.handleSetTaskTags)
			r.Post("/tasks/{taskID}/tags", s.handleAddTagToTask)
			r.Delete("/tasks/{taskID}/tags/{tag}", s.handleRemoveTagFromTask)

			r.Get("/tags", s.handleListTags)
			r.Delete("/tags/{tagID}", s.handleDeleteTag)

			r.Get("/plugins", s.handleListPlugins)
			r.Post("/plugins/reload", s.handleReloadPlugins)

			r.Post("/downloads/action", s.handleDownloadsAction)

			r.Get("/jobs/status", s.handleGetJobsStatus)
			r.Post("/jobs/run", s.handleRunJob)
		})
	})

	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}
