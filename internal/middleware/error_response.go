package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/listingwatch/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorResponseBody(apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(newErrorResponseBody(apiErr))
}

// internalError は詳細を含めない500応答の内容。詳細はログにのみ残す。
var internalError = model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "サーバー内部でエラーが発生しました。",
	Category: "system",
	Action:   "時間をおいて再度実行してください。解消しない場合はサーバーログを確認してください。",
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	apiErr := internalError
	WriteErrorResponse(w, http.StatusInternalServerError, &apiErr)
}
