package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	bookvision "github.com/nevindra/bookvision"
	"github.com/nevindra/bookvision/index"
	"github.com/nevindra/bookvision/ingest"
)

const maxUploadBytes = 64 << 20 // 64MB

type handler struct {
	svc   *bookvision.Service
	tasks *ingest.Manager
	ix    *index.Index
}

func newHandler(svc *bookvision.Service, tasks *ingest.Manager, ix *index.Index) http.Handler {
	h := &handler{svc: svc, tasks: tasks, ix: ix}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", h.upload)
	mux.HandleFunc("GET /tasks/{id}", h.taskStatus)
	mux.HandleFunc("POST /query", h.query)
	mux.HandleFunc("GET /books", h.books)
	mux.HandleFunc("GET /books/{id}/summary", h.summary)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("GET /health", h.health)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// upload accepts a multipart document and starts a background ingestion.
// The response carries the task ID to poll.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	extractor := ingest.ExtractorForFilename(header.Filename)
	pages, err := extractor.ExtractPages(content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "extract document: "+err.Error())
		return
	}

	taskID, err := h.tasks.Submit(r.Context(), ingest.Request{
		Title:  title,
		Source: header.Filename,
		Pages:  pages,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "submit ingestion: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  ingest.TaskProcessing,
	})
}

func (h *handler) taskStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.tasks.Status(r.PathValue("id"))
	if errors.Is(err, ingest.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type queryRequest struct {
	Question string              `json:"question"`
	BookID   string              `json:"book_id,omitempty"`
	History  []bookvision.QATurn `json:"history,omitempty"`
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := h.svc.Query(r.Context(), req.Question, req.BookID, req.History)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) books(w http.ResponseWriter, r *http.Request) {
	books := h.svc.ListBooks()
	if books == nil {
		books = []bookvision.BookInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Summary(r.Context(), r.PathValue("id"))
	if errors.Is(err, bookvision.ErrBookNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chunks": h.ix.Size(),
	})
}
