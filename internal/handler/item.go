package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/service"
)

// ItemHandler manages item search and attaching items to posts.
type ItemHandler struct {
	svc    *service.ItemService
	logger *slog.Logger
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(svc *service.ItemService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{svc: svc, logger: logger}
}

// HandleSearch proxies a keyword search to the item provider.
//
// HTTP: GET /api/items/search?keyword=...
// RESPONSE: {"items": [...]} — empty keyword means an empty list, not an
// error, so the frontend can bind the search box directly to this endpoint.
func (h *ItemHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")

	items, err := h.svc.Search(r.Context(), keyword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.SearchItem{"items": items})
}

// HandleCreate attaches an item to a post the caller owns.
//
// HTTP: POST /api/items  {"name","price","imageUrl","rakutenItemId","postId"}
// Auth: Required. Missing postId → 400; missing post → 404; someone else's
// post → 403.
func (h *ItemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	var req struct {
		Name          string `json:"name"`
		Price         int64  `json:"price"`
		ImageURL      string `json:"imageUrl"`
		RakutenItemID string `json:"rakutenItemId"`
		PostID        int64  `json:"postId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "invalid JSON body"))
		return
	}

	item := &model.Item{
		Name:          req.Name,
		Price:         req.Price,
		ImageURL:      req.ImageURL,
		RakutenItemID: req.RakutenItemID,
		PostID:        req.PostID,
	}

	created, err := h.svc.Create(r.Context(), identity.UserID, item)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Item{"item": created})
}

// HandleDelete removes an item the caller owns.
//
// HTTP: DELETE /api/items/{id}
// Auth: Required. Same 404-before-403 order as posts.
func (h *ItemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperror.ValidationFailed("id", "invalid item id"))
		return
	}

	if err := h.svc.Delete(r.Context(), identity.UserID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Deleted item %d", id)})
}
