package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps engine errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var (
		fetchErr   *curriculum.FetchError
		persistErr *curriculum.PersistError
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, curriculum.ErrPathNotFound),
		errors.Is(err, curriculum.ErrSubtopicNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, curriculum.ErrInvalidResource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &persistErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
