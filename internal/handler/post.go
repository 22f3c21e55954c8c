package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/service"
)

// PostHandler manages the post endpoints.
//
// Reads are public; create and delete run behind RequireAuth, so the
// identity is always in the context by the time those handlers run.
type PostHandler struct {
	svc    *service.PostService
	logger *slog.Logger
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(svc *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{svc: svc, logger: logger}
}

// HandleList returns all posts, newest first.
//
// HTTP: GET /api/posts
// RESPONSE: {"posts": [{..., "user": {...}, "items": [...]}, ...]}
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.Post{"posts": posts})
}

// HandleGet returns one post with its author and items.
//
// HTTP: GET /api/posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	post, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Post{"post": post})
}

// HandleCreate saves a new post owned by the caller.
//
// HTTP: POST /api/posts  {"title","content"}
// Auth: Required
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, but don't trust route wiring.
		writeError(w, apperror.Unauthorized())
		return
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "invalid JSON body"))
		return
	}

	post, err := h.svc.Create(r.Context(), identity.UserID, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Post{"post": post})
}

// HandleDelete removes a post the caller owns.
//
// HTTP: DELETE /api/posts/{id}
// Auth: Required. 404 for a missing post, 403 for someone else's — the
// service decides, in that order.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	id, err := postID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.Delete(r.Context(), identity.UserID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted post"})
}

// postID parses the {id} route parameter.
func postID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "invalid post id")
	}
	return id, nil
}
