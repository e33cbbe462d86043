package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/listingwatch/internal/middleware"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/preview"
)

// writeAPIErrorResponse はAPIErrorを統一フォーマットのJSONレスポンスとして書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はドメイン層から返されたエラーを適切なHTTPステータスコードに変換する。
// notFoundは対象リソースに応じたNotFoundエラーを返す。
func handleServiceError(w http.ResponseWriter, err error, notFound func() *model.APIError) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case errors.Is(err, model.ErrNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, notFound())
	case errors.Is(err, model.ErrInvalidSearch):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSearchError(err.Error()))
	case errors.Is(err, preview.ErrImageUnavailable):
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewImageUnavailableError())
	default:
		// 想定外のエラーは内部サーバーエラーとして扱う
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSearchNotFound, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidSearch, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeImageUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeSchedulerStopping:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
