package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/listingwatch/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		apiErr *model.APIError
	}{
		{"検索なし", http.StatusNotFound, model.NewSearchNotFoundError("s-1")},
		{"検索条件不正", http.StatusBadRequest, model.NewInvalidSearchError("query is empty")},
		{"画像取得失敗", http.StatusBadGateway, model.NewImageUnavailableError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.apiErr)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", cc)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			want := ErrorResponseBody{
				Code:     tt.apiErr.Code,
				Message:  tt.apiErr.Message,
				Category: tt.apiErr.Category,
				Action:   tt.apiErr.Action,
			}
			if diff := cmp.Diff(want, body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var raw map[string]string
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if raw[field] == "" {
			t.Errorf("field %q should not be empty", field)
		}
	}
	if raw["code"] != "INTERNAL_ERROR" || raw["category"] != "system" {
		t.Errorf("body = %v", raw)
	}

	// 共有の既定値が書き換えられていないこと
	if internalError.Code != "INTERNAL_ERROR" {
		t.Errorf("internalError mutated: %+v", internalError)
	}
}
