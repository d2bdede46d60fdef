package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/arsia/internal/model"
)

// ErrorResponseBody は全エンドポイント共通のエラーJSON。
// requestIdはサポート問い合わせ時にアクセスログと突き合わせるために返す。
type ErrorResponseBody struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteErrorResponse はAPIErrorを指定ステータスで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeErrorBody(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は500を書き込む。
// detailsは非本番環境でのみ渡し、本番では空文字にして内部情報を応答に出さない。
func WriteInternalServerError(w http.ResponseWriter, details string) {
	writeErrorBody(w, http.StatusInternalServerError, ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "Erreur interne du serveur",
		Category: "system",
		Action:   "Réessayez dans quelques instants.",
		Details:  details,
	})
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	// ログミドルウェアが先にレスポンスヘッダーへ載せた相関ID
	body.RequestID = w.Header().Get(RequestIDHeader)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
