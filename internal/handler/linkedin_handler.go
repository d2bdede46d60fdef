package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/arsia/internal/linkedin"
	"github.com/hitoshi/arsia/internal/middleware"
	"github.com/hitoshi/arsia/internal/model"
)

// コールバックのリダイレクトに付けるエラーコード。
const (
	linkedInErrNoCode        = "no_code"
	linkedInErrInvalidState  = "invalid_state"
	linkedInErrUserNotFound  = "user_not_found"
	linkedInErrCallback      = "callback_error"
	linkedInErrNotConfigured = "not_configured"
)

// LinkedInServiceInterface はLinkedInハンドラーが必要とするサービスインターフェース。
type LinkedInServiceInterface interface {
	AuthorizationURL(userID string) (string, error)
	Connect(ctx context.Context, code, state string) (*model.LinkedInConnection, error)
	Status(ctx context.Context, userID string) (*linkedin.Status, error)
	Disconnect(ctx context.Context, userID string) error
}

// LinkedInHandler はLinkedIn連携のHTTPハンドラー。
// serviceがnilの場合（未設定）は503 LINKEDIN_NOT_CONFIGUREDを返す。
type LinkedInHandler struct {
	errorResponder
	service     LinkedInServiceInterface
	frontendURL string
}

// NewLinkedInHandler はLinkedInHandlerを生成する。
func NewLinkedInHandler(service LinkedInServiceInterface, frontendURL string, exposeDetails bool) *LinkedInHandler {
	return &LinkedInHandler{
		errorResponder: errorResponder{exposeDetails: exposeDetails},
		service:        service,
		frontendURL:    frontendURL,
	}
}

type linkedInStatusResponse struct {
	Success          bool       `json:"success"`
	Connected        bool       `json:"connected"`
	ExpiresAt        *time.Time `json:"expiresAt"`
	OrganizationName *string    `json:"organizationName"`
	HasOrganization  bool       `json:"hasOrganization"`
}

// Auth はLinkedInの認可URLを返す。
// GET /api/linkedin/auth
func (h *LinkedInHandler) Auth(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	authURL, err := h.service.AuthorizationURL(userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"authUrl": authURL,
	})
}

// Callback は認可コールバックを処理し、ダッシュボードへリダイレクトする。
// 結果はクエリパラメータ（linkedin_connected / linkedin_error / warning）で伝える。
// GET /api/linkedin/callback?code=xxx&state=yyy
func (h *LinkedInHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		h.redirectError(w, r, linkedInErrNotConfigured)
		return
	}

	q := r.URL.Query()

	// 1. LinkedIn側のエラー（ユーザーが拒否した場合など）
	if e := q.Get("error"); e != "" {
		slog.Warn("linkedin authorization denied",
			slog.String("error", e),
			slog.String("error_description", q.Get("error_description")),
		)
		h.redirectError(w, r, e)
		return
	}

	// 2. 認可コードの取得
	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, linkedInErrNoCode)
		return
	}

	// 3. 接続処理
	conn, err := h.service.Connect(r.Context(), code, q.Get("state"))
	if err != nil {
		switch {
		case errors.Is(err, linkedin.ErrInvalidState):
			slog.Warn("linkedin callback with invalid state")
			h.redirectError(w, r, linkedInErrInvalidState)
		case errors.Is(err, linkedin.ErrUserNotFound):
			h.redirectError(w, r, linkedInErrUserNotFound)
		default:
			slog.Error("linkedin callback failed", slog.String("error", err.Error()))
			h.redirectError(w, r, linkedInErrCallback)
		}
		return
	}

	// 4. ダッシュボードへリダイレクト（組織ページがなければ警告付き）
	params := url.Values{}
	params.Set("linkedin_connected", "true")
	if conn.OrganizationURN == "" {
		params.Set("warning", "no_org")
	}
	http.Redirect(w, r, h.dashboardURL(params), http.StatusFound)
}

// Status はLinkedIn接続状態を返す。
// GET /api/linkedin/status
func (h *LinkedInHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	status, err := h.service.Status(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := linkedInStatusResponse{
		Success:         true,
		Connected:       status.Connected,
		ExpiresAt:       status.ExpiresAt,
		HasOrganization: status.HasOrganization,
	}
	if status.OrganizationName != "" {
		resp.OrganizationName = &status.OrganizationName
	}
	writeJSON(w, http.StatusOK, resp)
}

// Disconnect はLinkedIn接続を解除する。
// POST /api/linkedin/disconnect
func (h *LinkedInHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "LinkedIn déconnecté avec succès",
	})
}

func (h *LinkedInHandler) configured(w http.ResponseWriter) bool {
	if h.service == nil {
		apiErr := model.NewLinkedInNotConfiguredError()
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return false
	}
	return true
}

func (h *LinkedInHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	params := url.Values{}
	params.Set("linkedin_error", code)
	http.Redirect(w, r, h.dashboardURL(params), http.StatusFound)
}

func (h *LinkedInHandler) dashboardURL(params url.Values) string {
	return h.frontendURL + "/dashboard?" + params.Encode()
}
