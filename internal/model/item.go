// Package model はドメインモデルを定義する。
package model

import "time"

// Item は検索に紐づく1件の掲載を表す。
// 保存後はUnseenフラグ以外不変であり、CanonicalKeyはストア全体で一意。
type Item struct {
	ID            string
	SearchID      string
	Title         string
	Price         string // 表示用の文字列。数値とは限らない
	URL           string
	CanonicalKey  string
	PublishedText string // 取得元が返した日付文字列
	Location      string
	Delivery      bool
	Fitting       bool
	Description   string
	ImageURL      string
	FoundAt       time.Time
	Unseen        bool
}

// RawListing はListingSourceがページから抽出した未保存の掲載データ。
type RawListing struct {
	Title         string
	Price         string
	URL           string
	PublishedText string
	Location      string
	Delivery      bool
	Fitting       bool
	Description   string
	ImageURL      string
}

// Extractable は抽出可能なレコードかどうかを判定する。
// タイトルと画像の両方が欠けているレコード、および同一性を決められないURLなしのレコードは破棄対象となる。
func (r RawListing) Extractable() bool {
	if r.URL == "" {
		return false
	}
	return r.Title != "" || r.ImageURL != ""
}

// UpsertResult はupsertItemの結果を表す。重複はエラーではない。
type UpsertResult int

const (
	// UpsertInserted は新規に挿入されたことを示す。
	UpsertInserted UpsertResult = iota
	// UpsertDuplicateIgnored は正規化キーが既に存在したため無視されたことを示す。
	UpsertDuplicateIgnored
)

// String はログ出力用の文字列表現を返す。
func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertDuplicateIgnored:
		return "duplicate_ignored"
	default:
		return "unknown"
	}
}
