// Package notify は新着掲載とエラーの通知を提供する。
// 通知はキューを介して非同期に各送信先へ配送され、トラッカーをブロックしない。
package notify

import (
	"fmt"
	"strings"

	"github.com/hitoshi/listingwatch/internal/model"
)

// Message は送信先に依存しない通知内容。
type Message struct {
	Kind  Kind
	Title string
	Body  string
	URL   string // 単一掲載の場合のみ
}

// Kind は通知の種類。
type Kind string

const (
	KindNewItems Kind = "new_items"
	KindError    Kind = "error"
)

const (
	sampleTitleLimit  = 30
	errorMessageLimit = 100
)

// NewItemsMessage は新着掲載の通知を組み立てる。
// 1件の場合は掲載の要約を、複数件の場合は件数と先頭の掲載の抜粋を含める。
func NewItemsMessage(searchName string, items []*model.Item) Message {
	if len(items) == 1 {
		item := items[0]
		var parts []string
		if item.Title != "" {
			parts = append(parts, item.Title)
		}
		if item.Price != "" {
			parts = append(parts, "Цена: "+item.Price)
		}
		if item.PublishedText != "" {
			parts = append(parts, "Дата: "+item.PublishedText)
		}
		body := strings.Join(parts, " | ")
		if body == "" {
			body = "Найдено новое объявление"
		}
		return Message{
			Kind:  KindNewItems,
			Title: "Новое объявление: " + searchName,
			Body:  body,
			URL:   item.URL,
		}
	}

	sample := ""
	if len(items) > 0 {
		sample = truncate(items[0].Title, sampleTitleLimit)
		if items[0].Price != "" {
			sample += " - " + items[0].Price
		}
	}
	return Message{
		Kind:  KindNewItems,
		Title: fmt.Sprintf("Новых объявлений: %d", len(items)),
		Body:  fmt.Sprintf("По запросу: %s\nПример: %s\n...", searchName, sample),
	}
}

// ErrorMessage は検索のエラー通知を組み立てる。本文は100文字に切り詰める。
func ErrorMessage(searchName, message string) Message {
	title := "Ошибка Listingwatch"
	if searchName != "" {
		title = "Ошибка в запросе: " + searchName
	}
	return Message{
		Kind:  KindError,
		Title: title,
		Body:  truncate(message, errorMessageLimit),
	}
}

// Text はプレーンテキスト1本にまとめた表現を返す。
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
	}
	if m.URL != "" {
		b.WriteString("\n")
		b.WriteString(m.URL)
	}
	return b.String()
}

// truncate は文字数（rune）単位で切り詰める。
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
