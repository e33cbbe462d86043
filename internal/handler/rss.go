package handler

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/repository"
)

// rssMaxItems はRSSに含める掲載の上限。
const rssMaxItems = 100

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	GUID        rssGUID       `xml:"guid"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

// RSSHandler は検索の掲載をRSS 2.0として配信するHTTPハンドラー。
type RSSHandler struct {
	searches repository.SearchRepository
	items    repository.ItemRepository
	baseURL  string
}

// NewRSSHandler はRSSHandlerを生成する。baseURLはチャンネルのリンクに使う。
func NewRSSHandler(searches repository.SearchRepository, items repository.ItemRepository, baseURL string) *RSSHandler {
	return &RSSHandler{
		searches: searches,
		items:    items,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// GetFeed は検索の掲載を発見日時の降順でRSSとして返す。
// GET /api/searches/{id}/rss
func (h *RSSHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "id")
	search, err := h.searches.FindByID(r.Context(), searchID)
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}

	items, err := h.items.ListBySearch(r.Context(), searchID, false)
	if err != nil {
		handleServiceError(w, err, searchNotFound(r))
		return
	}
	if len(items) > rssMaxItems {
		items = items[:rssMaxItems]
	}

	doc := h.buildDocument(search, items)

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(doc)
}

func (h *RSSHandler) buildDocument(search *model.Search, items []*model.Item) rssDocument {
	ch := rssChannel{
		Title:       search.Name,
		Link:        fmt.Sprintf("%s/api/searches/%s", h.baseURL, search.ID),
		Description: fmt.Sprintf("%s / %s", search.Query, search.Location),
		Items:       make([]rssItem, 0, len(items)),
	}
	if len(items) > 0 {
		ch.LastBuildDate = items[0].FoundAt.UTC().Format(time.RFC1123Z)
	} else if search.LastCheckedAt != nil {
		ch.LastBuildDate = search.LastCheckedAt.UTC().Format(time.RFC1123Z)
	}

	for _, it := range items {
		entry := rssItem{
			Title:       it.Title,
			Link:        it.URL,
			Description: itemSummary(it),
			GUID:        rssGUID{Value: it.CanonicalKey},
			PubDate:     it.FoundAt.UTC().Format(time.RFC1123Z),
		}
		if it.ImageURL != "" {
			entry.Enclosure = &rssEnclosure{URL: it.ImageURL, Type: "image/jpeg"}
		}
		ch.Items = append(ch.Items, entry)
	}

	return rssDocument{Version: "2.0", Channel: ch}
}

// itemSummary は価格、所在地、掲載日時を1行にまとめる。
func itemSummary(it *model.Item) string {
	parts := []string{"Цена: " + it.Price}
	if it.Location != "" {
		parts = append(parts, it.Location)
	}
	if it.PublishedText != "" {
		parts = append(parts, it.PublishedText)
	}
	if it.Delivery {
		parts = append(parts, "Доставка")
	}
	summary := strings.Join(parts, " | ")
	if it.Description != "" {
		summary += "\n" + it.Description
	}
	return summary
}
