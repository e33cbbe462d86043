// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Search は定期的に再検索される名前付きの検索ジョブを表す。
// 物理削除は行わず、非アクティブ化をソフトデリートとして扱う。
type Search struct {
	ID               string
	Name             string
	Query            string
	Location         string
	PriceMin         *int
	PriceMax         *int
	DeliveryRequired bool
	FittingRequired  bool
	Active           bool
	CreatedAt        time.Time
	LastCheckedAt    *time.Time // 初回チェックまではnil
}

// Params は保存済みフィルタから検索パラメータを組み立てる。
func (s *Search) Params() SearchParams {
	return SearchParams{
		Query:    s.Query,
		Location: s.Location,
		PriceMin: s.PriceMin,
		PriceMax: s.PriceMax,
		Delivery: s.DeliveryRequired,
	}
}

// CheckedSince は最終チェックからの経過時間を返す。未チェックの場合はfalseを返す。
func (s *Search) CheckedSince(now time.Time) (time.Duration, bool) {
	if s.LastCheckedAt == nil {
		return 0, false
	}
	return now.Sub(*s.LastCheckedAt), true
}

// SearchSpec は検索作成時の入力を表す。
type SearchSpec struct {
	Name             string
	Query            string
	Location         string
	PriceMin         *int
	PriceMax         *int
	DeliveryRequired bool
	FittingRequired  bool
}

// Validate は検索の不変条件を検証する。
// クエリと地域は空であってはならず、両方指定時は price_min <= price_max でなければならない。
func (s SearchSpec) Validate() error {
	if strings.TrimSpace(s.Query) == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidSearch)
	}
	if strings.TrimSpace(s.Location) == "" {
		return fmt.Errorf("%w: location is empty", ErrInvalidSearch)
	}
	if s.PriceMin != nil && *s.PriceMin < 0 {
		return fmt.Errorf("%w: price_min is negative", ErrInvalidSearch)
	}
	if s.PriceMax != nil && *s.PriceMax < 0 {
		return fmt.Errorf("%w: price_max is negative", ErrInvalidSearch)
	}
	if s.PriceMin != nil && s.PriceMax != nil && *s.PriceMin > *s.PriceMax {
		return fmt.Errorf("%w: price_min %d exceeds price_max %d", ErrInvalidSearch, *s.PriceMin, *s.PriceMax)
	}
	return nil
}

// DisplayName は表示名を返す。名前が未指定の場合はクエリを使用する。
func (s SearchSpec) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return strings.TrimSpace(s.Query)
}

// SearchParams はマーケットプレイスへの1回の検索に使うパラメータ。
type SearchParams struct {
	Query    string
	Location string
	PriceMin *int
	PriceMax *int
	Delivery bool
}

// Stats は検索ごとの集計値。
type Stats struct {
	Total         int
	Unseen        int
	LastCheckedAt *time.Time
}
