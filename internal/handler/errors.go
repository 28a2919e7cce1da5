// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cartable/internal/model"
)

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError(""))
		return
	case errors.Is(err, model.ErrNoCurrentAccount):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewNoCurrentAccountError())
		return
	case errors.Is(err, model.ErrNotBound):
		// 切り替え途中のストア読み出しはアクティブアカウント不在と同等に扱う
		writeAPIErrorResponse(w, http.StatusConflict, model.NewNoCurrentAccountError())
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAccountNotFound, model.ErrCodeHomeworkNotFound:
		return http.StatusNotFound
	case model.ErrCodeNoCurrentAccount:
		return http.StatusConflict
	case model.ErrCodeInvalidDomain, model.ErrCodeInvalidPeriod:
		return http.StatusBadRequest
	case model.ErrCodeRefreshFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
