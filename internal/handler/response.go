// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/arsia/internal/middleware"
	"github.com/hitoshi/arsia/internal/model"
)

// errorResponder はサービス層のエラーを統一フォーマットのレスポンスに変換する。
// exposeDetails が true の場合（非本番環境）、内部エラーの詳細を応答に含める。
type errorResponder struct {
	exposeDetails bool
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (e errorResponder) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	details := ""
	if e.exposeDetails {
		details = err.Error()
	}
	middleware.WriteInternalServerError(w, details)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation,
		model.ErrCodeEmailTaken,
		model.ErrCodeInvalidUpload,
		model.ErrCodeFileTooLarge,
		model.ErrCodeInvalidArtisanID:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodePublicationNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyPublished:
		return http.StatusConflict
	case model.ErrCodeLinkedInNotConfigured:
		return http.StatusServiceUnavailable
	case model.ErrCodeCaptionFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeUnauthorized は未認証レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}
