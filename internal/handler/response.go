package handler

import (
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
)

// searchResponse は検索のレスポンス。
type searchResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Query            string     `json:"query"`
	Location         string     `json:"location"`
	PriceMin         *int       `json:"price_min,omitempty"`
	PriceMax         *int       `json:"price_max,omitempty"`
	DeliveryRequired bool       `json:"delivery_required"`
	FittingRequired  bool       `json:"fitting_required"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastCheckedAt    *time.Time `json:"last_checked_at"`
}

// statsResponse は検索ごとの集計レスポンス。
type statsResponse struct {
	Total         int        `json:"total"`
	Unseen        int        `json:"unseen"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
}

// searchWithStatsResponse は一覧表示用に集計を含めた検索のレスポンス。
type searchWithStatsResponse struct {
	searchResponse
	Stats statsResponse `json:"stats"`
}

// itemResponse は掲載のレスポンス。
type itemResponse struct {
	ID            string    `json:"id"`
	SearchID      string    `json:"search_id"`
	Title         string    `json:"title"`
	Price         string    `json:"price"`
	URL           string    `json:"url"`
	PublishedText string    `json:"published_text"`
	Location      string    `json:"location"`
	Delivery      bool      `json:"delivery"`
	Fitting       bool      `json:"fitting"`
	Description   string    `json:"description"`
	ImageURL      string    `json:"image_url,omitempty"`
	FoundAt       time.Time `json:"found_at"`
	Unseen        bool      `json:"unseen"`
}

func toSearchResponse(s *model.Search) searchResponse {
	return searchResponse{
		ID:               s.ID,
		Name:             s.Name,
		Query:            s.Query,
		Location:         s.Location,
		PriceMin:         s.PriceMin,
		PriceMax:         s.PriceMax,
		DeliveryRequired: s.DeliveryRequired,
		FittingRequired:  s.FittingRequired,
		Active:           s.Active,
		CreatedAt:        s.CreatedAt,
		LastCheckedAt:    s.LastCheckedAt,
	}
}

func toStatsResponse(st *model.Stats) statsResponse {
	return statsResponse{
		Total:         st.Total,
		Unseen:        st.Unseen,
		LastCheckedAt: st.LastCheckedAt,
	}
}

func toItemResponse(it *model.Item) itemResponse {
	return itemResponse{
		ID:            it.ID,
		SearchID:      it.SearchID,
		Title:         it.Title,
		Price:         it.Price,
		URL:           it.URL,
		PublishedText: it.PublishedText,
		Location:      it.Location,
		Delivery:      it.Delivery,
		Fitting:       it.Fitting,
		Description:   it.Description,
		ImageURL:      it.ImageURL,
		FoundAt:       it.FoundAt,
		Unseen:        it.Unseen,
	}
}

func toItemResponses(items []*model.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	return out
}
