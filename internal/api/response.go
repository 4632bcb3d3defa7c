package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archoctopus/archoctopus-go/internal/jobs"
	"github.com/archoctopus/archoctopus-go/internal/store"
	"github.com/archoctopus/archoctopus-go/internal/tasks"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithErr maps domain errors onto status codes.
func respondWithErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound), errors.Is(err, store.ErrNotFound),
		errors.Is(err, jobs.ErrJobNotFound):
		code = http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalidURL):
		code = http.StatusBadRequest
	case errors.Is(err, tasks.ErrTaskRunning), errors.Is(err, tasks.ErrNotRunning),
		errors.Is(err, tasks.ErrAlreadyDownloaded), errors.Is(err, jobs.ErrJobRunning):
		code = http.StatusConflict
	}
	RespondWithError(w, code, err.Error())
}

// idParam parses a positive integer URL parameter.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
