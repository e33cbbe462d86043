package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(t *testing.T, allowed, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := NewCORSMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/searches", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		origin  string
		want    string
	}{
		{"単一オリジン", "http://localhost:3000", "http://localhost:3000", "http://localhost:3000"},
		{"複数オリジンの2番目", "http://localhost:3000, https://watch.example", "https://watch.example", "https://watch.example"},
		{"末尾スラッシュは無視", "https://watch.example/", "https://watch.example", "https://watch.example"},
		{"ワイルドカード", "*", "https://reader.example", "*"},
		{"許可外のオリジン", "http://localhost:3000", "https://evil.example", ""},
		{"Originなし", "http://localhost:3000", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called := serveCORS(t, tt.allowed, http.MethodGet, tt.origin, false)
			if !called {
				t.Error("通常のリクエストは後段に渡すべき")
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Errorf("Access-Control-Allow-Credentials = %q, want empty", got)
			}
			if got := w.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	w, called := serveCORS(t, "http://localhost:3000", http.MethodOptions, "http://localhost:3000", true)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("プリフライトは後段に渡さない")
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After, X-Request-Id" {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
}

func TestCORSMiddleware_PlainOptionsPassesThrough(t *testing.T) {
	// Access-Control-Request-Method のないOPTIONSはプリフライトではない
	_, called := serveCORS(t, "http://localhost:3000", http.MethodOptions, "http://localhost:3000", false)
	if !called {
		t.Error("プリフライトでないOPTIONSは後段に渡すべき")
	}
}
