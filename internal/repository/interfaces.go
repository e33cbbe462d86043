// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
)

// SearchRepository は検索データの永続化インターフェース。
// 見つからない場合は model.ErrNotFound をラップしたエラーを返す。
type SearchRepository interface {
	// Create は検索を作成し、採番済みIDとCreatedAtを設定する。
	Create(ctx context.Context, search *model.Search) error

	// FindByID は指定IDの検索を取得する。
	FindByID(ctx context.Context, id string) (*model.Search, error)

	// ListActive はアクティブな検索を最終チェック日時の降順で返す。
	// 未チェックの検索は末尾に並ぶ。
	ListActive(ctx context.Context) ([]*model.Search, error)

	// ListAll は非アクティブを含むすべての検索を作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.Search, error)

	// TouchLastChecked は最終チェック日時を更新する。
	// 既存値より古い時刻は無視され、値は単調増加する。
	TouchLastChecked(ctx context.Context, id string, at time.Time) error

	// SetActive は検索のアクティブ状態を切り替える。非アクティブ化がソフトデリートとなる。
	SetActive(ctx context.Context, id string, active bool) error

	// Stats は検索ごとの掲載総数、未読数、最終チェック日時を返す。
	Stats(ctx context.Context, id string) (*model.Stats, error)
}

// ItemRepository は掲載データの永続化インターフェース。
// 正規化キーによる重複排除を提供する。
type ItemRepository interface {
	// Upsert は掲載URLから正規化キーを計算し、未登録なら挿入する。
	// 同じキーがすでに存在する場合は何も変更せず UpsertDuplicateIgnored を返す。
	// 同一キーの並行Upsertでも挿入されるのは1件のみ。
	Upsert(ctx context.Context, item *model.Item) (model.UpsertResult, error)

	// FindByID は指定IDの掲載を取得する。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// ListBySearch は検索に紐づく掲載を発見日時の降順で返す。
	ListBySearch(ctx context.Context, searchID string, unseenOnly bool) ([]*model.Item, error)

	// MarkViewed は掲載の未読フラグを下ろす。冪等。
	MarkViewed(ctx context.Context, id string) error

	// MarkSearchViewed は検索に紐づく全掲載の未読フラグを下ろし、変更件数を返す。
	MarkSearchViewed(ctx context.Context, searchID string) (int, error)

	// Delete は掲載を物理削除する。
	Delete(ctx context.Context, id string) error
}

// Store はTrackerが利用する永続化操作の集合。
type Store interface {
	Searches() SearchRepository
	Items() ItemRepository
	Ping(ctx context.Context) error
}
