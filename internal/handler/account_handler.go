package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/middleware"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// Delete はユーザーと投稿、保存済み画像を削除し、現在のセッションを失効させる。
	Delete(ctx context.Context, claims *auth.Claims) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	errorResponder
	service AccountServiceInterface
	cookie  CookieConfig
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, cookie CookieConfig, exposeDetails bool) *AccountHandler {
	return &AccountHandler{
		errorResponder: errorResponder{exposeDetails: exposeDetails},
		service:        service,
		cookie:         cookie,
	}
}

// Delete はアカウントを削除し、セッションCookieをクリアする。
// DELETE /api/users/me
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), claims); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	clearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
