package middleware

import "net/http"

// NewSecurityHeadersMiddleware はJSON、RSS、画像プレビューのみを返すAPI向けのレスポンスヘッダーを付与する。
// レスポンスをHTMLとして解釈させず、他サイトへの埋め込みも許可しない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			next.ServeHTTP(w, r)
		})
	}
}
