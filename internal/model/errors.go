// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound は指定IDの検索または掲載が存在しないことを示す。
	ErrNotFound = errors.New("not found")
	// ErrInvalidSearch は検索の不変条件違反を示す。
	ErrInvalidSearch = errors.New("invalid search")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, search, item, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSearchNotFound    = "SEARCH_NOT_FOUND"
	ErrCodeItemNotFound      = "ITEM_NOT_FOUND"
	ErrCodeInvalidSearch     = "INVALID_SEARCH"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeImageUnavailable  = "IMAGE_UNAVAILABLE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeSchedulerStopping = "SCHEDULER_STOPPING"
)

// NewSearchNotFoundError は検索未検出エラーを生成する。
func NewSearchNotFoundError(searchID string) *APIError {
	return &APIError{
		Code:     ErrCodeSearchNotFound,
		Message:  fmt.Sprintf("指定された検索が見つかりません: %s", searchID),
		Category: "search",
		Action:   "検索IDを確認してください。",
	}
}

// NewItemNotFoundError は掲載未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された掲載が見つかりません: %s", itemID),
		Category: "item",
		Action:   "掲載IDを確認してください。",
	}
}

// NewInvalidSearchError は検索条件の検証エラーを生成する。
func NewInvalidSearchError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSearch,
		Message:  fmt.Sprintf("検索条件が無効です: %s", reason),
		Category: "validation",
		Action:   "クエリと地域を入力し、最低価格が最高価格以下になるよう指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式の検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewImageUnavailableError は画像プレビュー取得失敗エラーを生成する。
func NewImageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeImageUnavailable,
		Message:  "画像を取得できませんでした。",
		Category: "item",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSchedulerStoppingError は停止処理中のスケジューラに開始を要求した場合のエラーを生成する。
func NewSchedulerStoppingError() *APIError {
	return &APIError{
		Code:     ErrCodeSchedulerStopping,
		Message:  "スケジューラは停止処理中のため開始できません。",
		Category: "system",
		Action:   "実行中のチェックが終わり停止した後に、もう一度開始してください。",
	}
}
