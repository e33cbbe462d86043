// Package source はマーケットプレイスの検索結果ページから掲載を取得する。
//
// 取得元は自動アクセスを検知してブロックする前提で設計されている。
// ページの描画手段はBrowser/Pageの狭いインターフェースの背後に置き、
// 待機・検知・抽出のロジックはブラウザ実装から独立してテストできる。
package source

import "context"

// Browser はページを生成する描画エンジンの抽象。
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page は1つのタブに対する操作の抽象。
// いずれの操作も要素の出現を待たずに即座に結果を返す。
type Page interface {
	Navigate(ctx context.Context, url string) error
	// HTML は描画後のドキュメント全体を返す。
	HTML(ctx context.Context) (string, error)
	// Has はセレクタに一致する要素が存在するかを返す。
	Has(ctx context.Context, selector string) (bool, error)
	// Visible はセレクタに一致する要素のうち1つでも表示されているかを返す。
	Visible(ctx context.Context, selector string) (bool, error)
	// BodyText はbody要素の表示テキストを返す。
	BodyText(ctx context.Context) (string, error)
	Scroll(ctx context.Context, dx, dy float64) error
	MoveMouse(ctx context.Context, x, y float64) error
	Close() error
}
