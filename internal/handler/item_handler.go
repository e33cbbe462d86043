package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/preview"
	"github.com/hitoshi/listingwatch/internal/repository"
)

// ItemHandler は掲載管理のHTTPハンドラー。
type ItemHandler struct {
	items  repository.ItemRepository
	images preview.ImageFetcherService
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(items repository.ItemRepository, images preview.ImageFetcherService) *ItemHandler {
	return &ItemHandler{
		items:  items,
		images: images,
	}
}

func itemNotFound(r *http.Request) func() *model.APIError {
	id := chi.URLParam(r, "id")
	return func() *model.APIError { return model.NewItemNotFoundError(id) }
}

// GetItem は掲載を1件返す。
// GET /api/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, itemNotFound(r))
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// MarkViewed は掲載を既読にする。冪等。
// POST /api/items/{id}/viewed
func (h *ItemHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	if err := h.items.MarkViewed(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err, itemNotFound(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteItem は掲載を削除する。
// 同じ掲載が再び取得されると新着として再登録される。
// DELETE /api/items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.items.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err, itemNotFound(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetImage は掲載の画像をSSRF対策済みクライアントで取得して返す。
// GET /api/items/{id}/image
func (h *ItemHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, itemNotFound(r))
		return
	}

	img, err := h.images.FetchImage(r.Context(), item.ImageURL)
	if err != nil {
		handleServiceError(w, fmt.Errorf("item %s: %w", item.ID, err), itemNotFound(r))
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
