// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"dakforge/internal/errors"
	"dakforge/internal/logging"
	"dakforge/internal/reconcile"
	"dakforge/internal/staging"
	"dakforge/internal/validation"
	shared "dakforge/shared/types"
)

// Handler exposes the staging store, orchestrator and reconciliation
// layer to the host application.
type Handler struct {
	store        *staging.Store
	orchestrator *validation.Orchestrator
	remote       shared.RemoteSource
	logger       *logging.Logger
}

func NewHandler(store *staging.Store, orchestrator *validation.Orchestrator, remote shared.RemoteSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		store:        store,
		orchestrator: orchestrator,
		remote:       remote,
		logger:       logger,
	}
}

// Register wires every route onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/staging/init", h.Initialize)
	mux.HandleFunc("GET /api/staging", h.GetStagingGround)
	mux.HandleFunc("POST /api/staging/files", h.UpdateFile)
	mux.HandleFunc("DELETE /api/staging/files", h.RemoveFile)
	mux.HandleFunc("POST /api/staging/files/rename", h.RenameFile)
	mux.HandleFunc("PUT /api/staging/message", h.UpdateMessage)
	mux.HandleFunc("GET /api/staging/history", h.GetHistory)
	mux.HandleFunc("POST /api/staging/rollback", h.Rollback)
	mux.HandleFunc("POST /api/staging/clear", h.Clear)
	mux.HandleFunc("POST /api/staging/contribute", h.Contribute)
	mux.HandleFunc("GET /api/staging/export", h.Export)
	mux.HandleFunc("POST /api/staging/import", h.Import)
	mux.HandleFunc("POST /api/staging/validate", h.ValidateStagingGround)
	mux.HandleFunc("GET /api/validate", h.ValidateDAK)
	mux.HandleFunc("GET /api/files", h.ListFiles)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if typed, ok := err.(*errors.Error); ok {
		writeJSON(w, typed.Code, typed)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Repository string `json:"repository"`
		Branch     string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}

	if err := h.store.Initialize(r.Context(), req.Repository, req.Branch); err != nil {
		writeError(w, err)
		return
	}

	h.logger.WithScope(req.Repository, req.Branch).Info("staging scope bound")
	writeJSON(w, http.StatusOK, h.store.GetStagingGround(r.Context()))
}

func (h *Handler) GetStagingGround(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetStagingGround(r.Context()))
}

func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string               `json:"path"`
		Content  string               `json:"content"`
		Metadata staging.FileMetadata `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}
	if req.Path == "" {
		writeError(w, errors.ValidationError("path is required", nil))
		return
	}

	if !h.store.UpdateFile(r.Context(), req.Path, req.Content, req.Metadata) {
		writeError(w, errors.StorageError("staging the file failed", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errors.ValidationError("path is required", nil))
		return
	}

	if !h.store.RemoveFile(r.Context(), path) {
		writeError(w, errors.StorageError("unstaging the file failed", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPath string `json:"oldPath"`
		NewPath string `json:"newPath"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}

	if err := h.store.RenameFile(r.Context(), req.OldPath, req.NewPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}

	if !h.store.UpdateCommitMessage(r.Context(), req.Message) {
		writeError(w, errors.StorageError("saving the message failed", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.store.History(r.Context())
	if history == nil {
		history = []staging.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SavedAt int64 `json:"savedAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}

	if err := h.store.RollbackToSave(r.Context(), req.SavedAt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetStagingGround(r.Context()))
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if !h.store.Clear(r.Context()) {
		writeError(w, errors.StorageError("clearing the staging ground failed", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files    []staging.Contribution `json:"files"`
		Metadata staging.FileMetadata   `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid request body", nil))
		return
	}

	result := h.store.ContributeFiles(r.Context(), req.Files, req.Metadata)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.ValidationError("reading import payload failed", nil))
		return
	}

	if err := h.store.Import(r.Context(), data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetStagingGround(r.Context()))
}

func (h *Handler) ValidateStagingGround(w http.ResponseWriter, r *http.Request) {
	ground := h.store.GetStagingGround(r.Context())
	writeJSON(w, http.StatusOK, h.orchestrator.ValidateStagingGround(r.Context(), ground))
}

func (h *Handler) ValidateDAK(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch, err := h.boundScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	report, err := h.orchestrator.ValidateDAK(r.Context(), owner, repo, branch, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListFiles returns the reconciled project tree: the remote file list
// with staged edits taking precedence.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch, err := h.boundScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tree, err := h.remote.GetTree(r.Context(), owner, repo, branch)
	if err != nil {
		writeError(w, err)
		return
	}

	ground := h.store.GetStagingGround(r.Context())
	writeJSON(w, http.StatusOK, reconcile.MergeGround(tree, ground))
}

func (h *Handler) boundScope(r *http.Request) (owner, repo, branch string, err error) {
	if _, err := h.store.StorageKey(); err != nil {
		return "", "", "", err
	}

	ground := h.store.GetStagingGround(r.Context())
	parts := strings.SplitN(ground.Repository, "/", 2)
	if len(parts) != 2 {
		return "", "", "", errors.ValidationError("bound repository is not owner/name", ground.Repository)
	}
	return parts[0], parts[1], ground.Branch, nil
}
