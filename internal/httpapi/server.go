// Package httpapi exposes learning-path sessions over HTTP. Clients only
// ever see panel view models and progress state.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-pathways/internal/backend"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/panel"
	"github.com/p-n-ai/pai-pathways/internal/progress"
	"github.com/p-n-ai/pai-pathways/internal/report"
	"github.com/p-n-ai/pai-pathways/internal/resource"
	"github.com/p-n-ai/pai-pathways/internal/session"
)

const defaultMaxUpload = 5 << 20

// Server serves the session API.
type Server struct {
	sessions  *session.Manager
	uploads   backend.UploadReader
	maxUpload int64
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes limits multipart resource submissions.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithUploads serves stored uploads under /uploads/.
func WithUploads(r backend.UploadReader) Option {
	return func(s *Server) { s.uploads = r }
}

// New creates a Server over the session manager.
func New(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		maxUpload: defaultMaxUpload,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", s.handleOpen)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/sessions/{id}/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/sessions/{id}/select", s.handleSelect)
	mux.HandleFunc("POST /api/sessions/{id}/close", s.handleClosePanel)
	mux.HandleFunc("POST /api/sessions/{id}/subtopics/{subtopicID}/resources", s.handleAddResource)
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/sessions/{id}/report.xlsx", s.handleReport)
	if s.uploads != nil {
		mux.HandleFunc("GET "+backend.UploadPrefix+"{name}", s.handleUpload)
	}
}

// sessionResponse carries both the displayed progress and the newest state
// the backend acknowledged.
type sessionResponse struct {
	SessionID     string                  `json:"session_id"`
	Path          curriculum.LearningPath `json:"path"`
	Progress      progress.State          `json:"progress"`
	SavedProgress progress.State          `json:"saved_progress"`
	Panel         panel.ViewModel         `json:"panel"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:     sess.ID,
		Path:          sess.Path,
		Progress:      sess.Tracker.State(),
		SavedProgress: sess.Tracker.Acknowledged(),
		Panel:         sess.Panel.Current(),
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PathID string `json:"path_id"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.PathID) == "" {
		writeError(w, http.StatusBadRequest, "path_id is required")
		return
	}

	sess, err := s.sessions.Open(r.Context(), req.PathID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		SubtopicName string `json:"subtopic_name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SubtopicName == "" {
		writeError(w, http.StatusBadRequest, "subtopic_name is required")
		return
	}

	st, err := sess.Tracker.Toggle(r.Context(), req.SubtopicName)
	var persistErr *curriculum.PersistError
	if errors.As(err, &persistErr) {
		writeJSON(w, http.StatusConflict, struct {
			Error    string         `json:"error"`
			Progress progress.State `json:"progress"`
		}{"Failed to save progress. Your change was undone.", st})
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}

	vm, err := sess.Panel.Select(r.Context(), *req.Index)
	if err != nil && !errors.Is(err, panel.ErrSuperseded) {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

func (s *Server) handleClosePanel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Panel.Close())
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	subtopicID, err := strconv.Atoi(r.PathValue("subtopicID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "subtopic id must be an integer")
		return
	}
	if _, ok := sess.Path.Subtopic(subtopicID); !ok {
		writeErr(w, fmt.Errorf("%w: %d", curriculum.ErrSubtopicNotFound, subtopicID))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	draft, err := readDraft(r, s.maxUpload)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := sess.Panel.SubmitResource(r.Context(), subtopicID, draft)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Resources []curriculum.Resource `json:"resources"`
	}{res})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteProgress(&buf, sess.Path, sess.Tracker.State(), s.now()); err != nil {
		slog.Error("progress report failed", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-progress.xlsx"`, sess.Path.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := s.uploads.ReadUpload(r.Context(), r.PathValue("name"))
	if errors.Is(err, backend.ErrUploadNotFound) {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	if err != nil {
		slog.Error("reading upload failed", "name", r.PathValue("name"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return sess, true
}

// readDraft accepts a JSON body or a multipart form whose optional "file"
// part is image content to upload.
func readDraft(r *http.Request, maxUpload int64) (resource.Draft, error) {
	var d resource.Draft
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, &d); err != nil {
			return d, err
		}
		return d, nil
	}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return d, err
	}
	d.Kind = curriculum.ResourceKind(r.FormValue("type"))
	d.Title = r.FormValue("title")
	d.Content = r.FormValue("content")
	d.URL = r.FormValue("url")
	d.Language = r.FormValue("language")

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return d, nil
	}
	if err != nil {
		return d, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		return d, fmt.Errorf("read upload: %w", err)
	}
	d.Filename = header.Filename
	d.Data = buf.Bytes()
	return d, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
