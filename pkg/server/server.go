package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskcreator/pkg/media"
	"taskcreator/pkg/pipeline"
	"taskcreator/pkg/session"
	"taskcreator/pkg/share"
	"taskcreator/pkg/store"
	"taskcreator/pkg/task"
)

const maxUploadBytes = 256 << 20

// TaskStore is the store surface the handlers consume.
type TaskStore interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	GetAll(ctx context.Context) (map[string]task.Task, error)
	GetPublished(ctx context.Context) (map[string]task.Task, error)
	GetUniqueAddresses(ctx context.Context) ([]string, error)
	Publish(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// BlobResolver resolves playable references to inline data.
type BlobResolver interface {
	Resolve(url string) (string, error)
	Delete(id string) error
}

// TaskCreator runs the capture pipeline over uploaded files.
type TaskCreator interface {
	CreateTask(ctx context.Context, files []pipeline.InputFile) (*task.Task, []pipeline.Warning, error)
}

// SessionStore persists in-progress uploads for session recovery.
type SessionStore interface {
	Save(ctx context.Context, files []session.PersistedMedia) error
	Load(ctx context.Context) ([]session.PersistedMedia, error)
	Clear(ctx context.Context) error
}

// Server exposes the capture and share flows over HTTP. This is the
// minimal machine boundary, not a UI.
type Server struct {
	pipeline TaskCreator
	tasks    TaskStore
	blobs    BlobResolver
	sessions SessionStore
	origin   string
}

func New(p TaskCreator, tasks TaskStore, blobs BlobResolver, sessions SessionStore, origin string) *Server {
	return &Server{pipeline: p, tasks: tasks, blobs: blobs, sessions: sessions, origin: origin}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/tasks", s.handleCreate)
	r.Get("/tasks", s.handleList)
	r.Get("/tasks/{taskID}", s.handleGet)
	r.Post("/tasks/{taskID}/publish", s.handlePublish)
	r.Delete("/tasks/{taskID}", s.handleDelete)
	r.Get("/tasks/{taskID}/video", s.handleVideo)
	r.Get("/addresses", s.handleAddresses)
	r.Get("/shared/{taskID}", s.handleShared)
	r.Put("/session/media", s.handleSessionSave)
	r.Get("/session/media", s.handleSessionLoad)
	r.Delete("/session/media", s.handleSessionClear)

	return r
}

type createResponse struct {
	Task     *task.Task         `json:"task"`
	Warnings []pipeline.Warning `json:"warnings,omitempty"`
	ShareURL string             `json:"shareUrl"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	form := r.MultipartForm
	var files []pipeline.InputFile
	for _, header := range form.File["media"] {
		kind := media.DetectKind(header.Filename)
		if kind == "" {
			writeError(w, http.StatusBadRequest, "unsupported media type: "+header.Filename)
			return
		}

		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload: "+header.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload: "+header.Filename)
			return
		}

		files = append(files, pipeline.InputFile{Name: header.Filename, Kind: kind, Data: data})
	}

	t, warnings, err := s.pipeline.CreateTask(r.Context(), files)
	if err != nil {
		log.Printf("Task creation failed: %v", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Task:     t,
		Warnings: warnings,
		ShareURL: share.Link(s.origin, t.ID),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		tasks map[string]task.Task
		err   error
	)
	if r.URL.Query().Get("published") == "true" {
		tasks, err = s.tasks.GetPublished(r.Context())
	} else {
		tasks, err = s.tasks.GetAll(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Publish(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.blobs.Delete(id + "-video"); err != nil {
		log.Printf("Failed to remove video for task %s: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	for _, asset := range t.Media {
		if asset.Kind == media.KindVideo && asset.IsPlayable {
			resolved, err := s.blobs.Resolve(asset.URL)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if resolved == "" {
				break
			}
			writeJSON(w, http.StatusOK, map[string]string{"video": resolved})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no playable video for task")
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := s.tasks.GetUniqueAddresses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, addresses)
}

func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	t, err := share.Resolve(r.Context(), s.tasks, chi.URLParam(r, "taskID"))
	if errors.Is(err, share.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	var files []session.PersistedMedia
	if err := json.NewDecoder(r.Body).Decode(&files); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session media payload")
		return
	}
	if err := s.sessions.Save(r.Context(), files); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionLoad(w http.ResponseWriter, r *http.Request) {
	files, err := s.sessions.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var _ TaskStore = (*store.Store)(nil)
