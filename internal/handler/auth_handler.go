package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/middleware"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler はメールアドレス認証関連のHTTPハンドラー。
type AuthHandler struct {
	errorResponder
	service   AuthServiceInterface
	cookie    CookieConfig
	validator *requestValidator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie CookieConfig, exposeDetails bool) *AuthHandler {
	return &AuthHandler{
		errorResponder: errorResponder{exposeDetails: exposeDetails},
		service:        service,
		cookie:         cookie,
		validator:      newRequestValidator(),
	}
}

// signupRequest は登録リクエストのボディ。
type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// loginRequest はログインリクエストのボディ。
// 形式の検証は行わず、不一致はすべて認証エラーとして扱う。
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// Signup はユーザー登録を処理する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := h.validator.decode(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.Token)
	writeJSON(w, http.StatusCreated, authResponse{
		Success: true,
		User:    userResponse{ID: session.User.ID, Email: session.User.Email},
	})
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validator.decode(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, session.Token)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User:    userResponse{ID: session.User.ID, Email: session.User.Email},
	})
}

// Logout はトークンを失効させ、セッションCookieを削除する。
// 未認証でも成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), claims); err != nil {
			// 失効に失敗してもCookieはクリアする
			slog.Error("failed to revoke session",
				slog.String("user_id", claims.UserID()),
				slog.String("error", err.Error()),
			)
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Déconnexion réussie",
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User:    userResponse{ID: claims.UserID(), Email: claims.Email},
	})
}

// setSessionCookie はセッショントークンをHttpOnly Cookieに設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	clearSessionCookie(w, h.cookie)
}

func clearSessionCookie(w http.ResponseWriter, cookie CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
