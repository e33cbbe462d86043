// Package canonical は掲載URLから安定した同一性キーを導出する。
//
// 取得元は同じ掲載をトラッキング用クエリ文字列の異なるURLで返すため、
// 生のURLではなくこのキーを重複排除の境界として使う。
package canonical

import (
	"regexp"
	"strings"
)

// listingIDPattern は末尾が _<数字> で終わるパスまでの最長プレフィックスにマッチする。
// 直後はパス区切り、クエリ、フラグメント、または文字列末尾でなければならない。
var listingIDPattern = regexp.MustCompile(`^([^?#]*_[0-9]+)(?:[/?#]|$)`)

// Key は正規化キーを表す。
type Key string

// Canonicalize は掲載URLを正規化キーに変換する。
// 純粋・決定的・冪等であり、Canonicalize(Canonicalize(u)) == Canonicalize(u) が成り立つ。
//
//   - _<数字> で終わるパスセグメントがある場合、その直後以降（クエリ文字列を含む）を除去する
//   - パターンがない場合はクエリ文字列のみを除去する
func Canonicalize(rawURL string) Key {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}

	if m := listingIDPattern.FindStringSubmatch(u); m != nil {
		return Key(m[1])
	}

	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return Key(u)
}

// String はキーの文字列表現を返す。
func (k Key) String() string {
	return string(k)
}
