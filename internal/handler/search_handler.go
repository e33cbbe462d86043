package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/repository"
	"github.com/hitoshi/listingwatch/internal/tracker"
)

// SearchTracker は検索ハンドラーが必要とするTrackerの操作。
type SearchTracker interface {
	// CreateSearch は検索を作成して初回チェックを行い、IDと新着件数を返す。
	CreateSearch(ctx context.Context, spec model.SearchSpec, backfillPages int) (string, int, error)
	// Check は検索を1回チェックする。
	Check(ctx context.Context, searchID string) (*tracker.CheckResult, error)
}

// SearchHandler は検索管理のHTTPハンドラー。
type SearchHandler struct {
	tracker  SearchTracker
	searches repository.SearchRepository
	items    repository.ItemRepository
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(t SearchTracker, searches repository.SearchRepository, items repository.ItemRepository) *SearchHandler {
	return &SearchHandler{
		tracker:  t,
		searches: searches,
		items:    items,
	}
}

// createSearchRequest は検索作成リクエストのボディ。
type createSearchRequest struct {
	Name             string `json:"name"`
	Query            string `json:"query"`
	Location         string `json:"location"`
	PriceMin         *int   `json:"price_min,omitempty"`
	PriceMax         *int   `json:"price_max,omitempty"`
	DeliveryRequired bool   `json:"delivery_required"`
	FittingRequired  bool   `json:"fitting_required"`
	BackfillPages    int    `json:"backfill_pages,omitempty"`
}

// createSearchResponse は検索作成のレスポンス。
type createSearchResponse struct {
	ID           string `json:"id"`
	NewItemCount int    `json:"new_item_count"`
}

// checkResponse は手動チェックのレスポンス。
type checkResponse struct {
	SearchID   string         `json:"search_id"`
	Outcome    string         `json:"outcome"`
	Fetched    int            `json:"fetched"`
	Duplicates int            `json:"duplicates"`
	DurationMs float64        `json:"duration_ms"`
	NewItems   []itemResponse `json:"new_items"`
	Error      string         `json:"error,omitempty"`
}

// setActiveRequest はアクティブ状態切り替えリクエストのボディ。
type setActiveRequest struct {
	Active *bool `json:"active"`
}

// markViewedResponse は一括既読化のレスポンス。
type markViewedResponse struct {
	Updated int `json:"updated"`
}

func searchNotFound(r *http.Request) func() *model.APIError {
	id := chi.URLParam(r, "id")
	return func() *model.APIError { return model.NewSearchNotFoundError(id) }
}

// ListSearches は検索一覧を集計付きで返す。
// GET /api/searches?all=true で非アクティブな検索も含める。
func (h *SearchHandler) ListSearches(w http.ResponseWriter, r *http.Request) {
	list := h.searches.ListActive
	if includeAll, _ := strconv.ParseBool(r.URL.Query().Get("all")); includeAll {
		list = h.searches.ListAll
	}

	searches, err := list(r.Context())
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	resp := make([]searchWithStatsResponse, 0, len(searches))
	for _, s := range searches {
		stats, err := h.searches.Stats(r.Context(), s.ID)
		if err != nil {
			handleServiceError(w, err, searchNotFound(r))
			return
		}
		resp = append(resp, searchWithStatsResponse{
			searchResponse: toSearchResponse(s),
			Stats:          toStatsResponse(stats),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateSearch は検索を作成し、初回チェックの新着件数を返す。
// POST /api/searches
func (h *SearchHandler) CreateSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディが不正です。"))
		return
	}

	spec := model.SearchSpec{
		Name:             req.Name,
		Query:            req.Query,
		Location:         req.Location,
		PriceMin:         req.PriceMin,
		PriceMax:         req.PriceMax,
		DeliveryRequired: req.DeliveryRequired,
		FittingRequired:  req.FittingRequired,
	}

	id, count, err := h.tracker.CreateSearch(r.Context(), spec, req.BackfillPages)
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	slog.Info("search created via api",
		slog.String("search_id", id),
		slog.Int("new_items", count),
	)

	writeJSON(w, http.StatusCreated, createSearchResponse{ID: id, NewItemCount: count})
}

// GetSearch は検索を1件返す。
// GET /api/searches/{id}
func (h *SearchHandler) GetSearch(w http.ResponseWriter, r *http.Request) {
	search, err := h.searches.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(search))
}

// ListItems は検索に紐づく掲載を発見日時の降順で返す。
// GET /api/searches/{id}/items?unseen=true
func (h *SearchHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "id")
	if _, err := h.searches.FindByID(r.Context(), searchID); err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	unseenOnly, _ := strconv.ParseBool(r.URL.Query().Get("unseen"))
	items, err := h.items.ListBySearch(r.Context(), searchID, unseenOnly)
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	writeJSON(w, http.StatusOK, toItemResponses(items))
}

// GetStats は検索の掲載総数、未読数、最終チェック日時を返す。
// GET /api/searches/{id}/stats
func (h *SearchHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.searches.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// CheckSearch は検索を直ちに1回チェックする。非アクティブな検索でも実行する。
// 取得元の失敗は200でoutcomeとerrorに反映する。
// POST /api/searches/{id}/check
func (h *SearchHandler) CheckSearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.tracker.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	resp := checkResponse{
		SearchID:   result.SearchID,
		Outcome:    string(result.Outcome),
		Fetched:    result.Fetched,
		Duplicates: result.Duplicates,
		DurationMs: float64(result.Duration.Milliseconds()),
		NewItems:   toItemResponses(result.NewItems),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetActive は検索のアクティブ状態を切り替える。
// PUT /api/searches/{id}/active
func (h *SearchHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("activeフィールドは必須です。"))
		return
	}

	searchID := chi.URLParam(r, "id")
	if err := h.searches.SetActive(r.Context(), searchID, *req.Active); err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	search, err := h.searches.FindByID(r.Context(), searchID)
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(search))
}

// MarkViewed は検索に紐づく全掲載を既読にする。
// POST /api/searches/{id}/viewed
func (h *SearchHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	n, err := h.items.MarkSearchViewed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}
	writeJSON(w, http.StatusOK, markViewedResponse{Updated: n})
}
