// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は取得元ページから抽出した文字列からマークアップを除去し、
// 保存・通知・RSS出力に使えるプレーンテキストへ正規化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Text はタグをすべて除去し、実体参照を戻し、連続する空白を1つに畳んで返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Text(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyを使うTextSanitizerの実装。
// Policyはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは & などをエスケープして返すため、最後に戻す
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
