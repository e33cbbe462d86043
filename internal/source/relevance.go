package source

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/listingwatch/internal/model"
)

// inflections は語末の文字ごとの格変化の候補。
var inflections = map[rune][]string{
	'и': {"и", "ов", "ам", "ами", "ах"},
	'а': {"а", "ы", "е", "у", "ой", "ам"},
	'я': {"я", "и", "е", "ю", "ей", "ям"},
	'о': {"о", "а", "у", "ом", "е"},
	'е': {"е", "я", "ю", "ем", "и"},
}

// wordForms は単語の簡易的な変化形を返す。
func wordForms(word string) []string {
	forms := []string{word}

	last, size := utf8.DecodeLastRuneInString(word)
	stem := word[:len(word)-size]
	for _, ending := range inflections[last] {
		forms = append(forms, stem+ending)
	}

	if utf8.RuneCountInString(word) > 4 {
		runes := []rune(word)
		forms = append(forms, string(runes[:len(runes)-1]), string(runes[:len(runes)-2]))
	}
	return forms
}

// IsRelevant はクエリの最初の単語（いずれかの変化形）がタイトルか説明に含まれるかを判定する。
// 3文字以下の単語は常に関連ありとみなす。
// タイトルも説明もない画像のみの掲載は判定材料がないため関連ありとする。
func IsRelevant(query, title, description string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 || (title == "" && description == "") {
		return true
	}
	first := words[0]
	if utf8.RuneCountInString(first) <= 3 {
		return true
	}

	haystacks := []string{strings.ToLower(title), strings.ToLower(description)}
	for _, form := range wordForms(first) {
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, form) {
				return true
			}
		}
	}
	return false
}

// FilterRelevant はクエリに関連しない掲載を取り除く。
func FilterRelevant(query string, listings []model.RawListing) []model.RawListing {
	out := listings[:0:0]
	for _, l := range listings {
		if IsRelevant(query, l.Title, l.Description) {
			out = append(out, l)
		}
	}
	return out
}
