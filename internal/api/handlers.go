package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/db"
	"github.com/querypilot/querypilot/internal/logger"
	"github.com/querypilot/querypilot/internal/memory"
	"github.com/querypilot/querypilot/internal/rag"
	"github.com/querypilot/querypilot/internal/session"
)

var log = logger.Named("api")

const maxUploadBytes = 10 << 20

type APIHandler struct {
	orchestrator *agent.Orchestrator
	pipeline     *rag.Pipeline
	registry     *db.Registry
	mem          *memory.Store
	sessions     *session.Store
	validate     *validator.Validate
	uploadDir    string
}

func NewAPIHandler(orchestrator *agent.Orchestrator, pipeline *rag.Pipeline, registry *db.Registry, mem *memory.Store, sessions *session.Store, uploadDir string) *APIHandler {
	return &APIHandler{
		orchestrator: orchestrator,
		pipeline:     pipeline,
		registry:     registry,
		mem:          mem,
		sessions:     sessions,
		validate:     validator.New(),
		uploadDir:    uploadDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type QueryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" validate:"required"`
}

// QueryHandler runs one query through the routing engine. A missing session
// id starts a fresh session, returned in the response.
func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := h.sessions.GetOrCreate(sessionID)

	result, err := h.orchestrator.HandleQuery(r.Context(), sessionID, req.Query, sess.Documents())
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotConnected):
			writeError(w, http.StatusBadRequest, "No database connected for this session. Connect one first.")
		default:
			log.Errorw("query failed", "session", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to process query")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"answer":     result,
	})
}

// UploadHandler ingests one plain-text document into the session's index and
// stores the original under the served uploads directory.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := h.sessions.GetOrCreate(sessionID)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A 'file' form field is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if len(raw) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "File exceeds the 10MB upload limit")
		return
	}
	if !utf8.Valid(raw) || strings.ContainsRune(string(raw), '\x00') {
		writeError(w, http.StatusUnsupportedMediaType, "Only plain-text documents are supported")
		return
	}

	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "Invalid file name")
		return
	}

	sessionDir := filepath.Join(h.uploadDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		log.Errorw("failed to create upload dir", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	if err := os.WriteFile(filepath.Join(sessionDir, fileName), raw, 0o644); err != nil {
		log.Errorw("failed to store upload", "session", sessionID, "file", fileName, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	chunks, err := h.pipeline.Ingest(r.Context(), sessionID, fileName, string(raw))
	if err != nil {
		log.Errorw("ingestion failed", "session", sessionID, "file", fileName, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to index document")
		return
	}
	sess.AddDocument(fileName)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"file_name":  fileName,
		"chunks":     chunks,
	})
}

// ListDocsHandler lists the session's uploaded document names.
func (h *APIHandler) ListDocsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.sessions.Exists(sessionID) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"documents":  h.sessions.GetOrCreate(sessionID).Documents(),
	})
}

type DBConnectRequest struct {
	SessionID        string `json:"session_id"`
	ConnectionString string `json:"connection_string" validate:"required"`
}

// DBConnectHandler binds a database to the session.
func (h *APIHandler) DBConnectHandler(w http.ResponseWriter, r *http.Request) {
	var req DBConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "connection_string is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	h.sessions.GetOrCreate(sessionID)

	engine, err := h.registry.Connect(r.Context(), sessionID, req.ConnectionString)
	if err != nil {
		log.Warnw("database connect failed", "session", sessionID, "error", err)
		writeError(w, http.StatusBadRequest, "Failed to connect: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"db_type":    engine,
	})
}

type DBDisconnectRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// DBDisconnectHandler disposes the session's live database handle. The
// persisted connection record survives so a later query can rehydrate.
func (h *APIHandler) DBDisconnectHandler(w http.ResponseWriter, r *http.Request) {
	var req DBDisconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.registry.Disconnect(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// DBSchemaHandler reflects and returns the live schema of the session's
// bound database.
func (h *APIHandler) DBSchemaHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	binding, err := h.registry.Binding(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotConnected) {
			writeError(w, http.StatusNotFound, "No database connected for this session")
			return
		}
		log.Errorw("failed to resolve database binding", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to access database")
		return
	}

	schema, err := db.InspectSchema(r.Context(), binding)
	if err != nil {
		log.Errorw("schema inspection failed", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to inspect schema")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"db_type":    binding.Engine,
		"schema":     schema,
	})
}

// ResetSessionHandler tears down everything the session owns: conversation
// memory, the database binding and its persisted record, indexed chunks,
// and stored uploads.
func (h *APIHandler) ResetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	h.mem.Clear(sessionID)
	h.registry.Disconnect(sessionID)
	if err := h.registry.RemoveConfig(sessionID); err != nil {
		log.Warnw("failed to remove persisted db config", "session", sessionID, "error", err)
	}
	if err := h.pipeline.DropSession(r.Context(), sessionID); err != nil {
		log.Warnw("failed to drop indexed chunks", "session", sessionID, "error", err)
	}
	if err := os.RemoveAll(filepath.Join(h.uploadDir, sessionID)); err != nil {
		log.Warnw("failed to remove uploads", "session", sessionID, "error", err)
	}
	h.sessions.Delete(sessionID)

	log.Infow("session reset", "session", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
