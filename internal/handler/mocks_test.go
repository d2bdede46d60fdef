package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/arsia/internal/account"
	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/linkedin"
	"github.com/hitoshi/arsia/internal/middleware"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/publication"
	"github.com/hitoshi/arsia/internal/upload"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, email, password string) (*auth.Session, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.Session, error)
	logoutFn   func(ctx context.Context, claims *auth.Claims) error
}

func (m *mockAuthService) Register(ctx context.Context, email, password string) (*auth.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, claims)
	}
	return nil
}

type mockPublicationService struct {
	listFn    func(ctx context.Context, userID string) ([]*model.Publication, error)
	createFn  func(ctx context.Context, userID string, input publication.CreateInput, img *upload.Image) (*model.Publication, error)
	publishFn func(ctx context.Context, userID, publicationID string) (*publication.PublishResult, error)
}

func (m *mockPublicationService) List(ctx context.Context, userID string) ([]*model.Publication, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPublicationService) Create(ctx context.Context, userID string, input publication.CreateInput, img *upload.Image) (*model.Publication, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, input, img)
	}
	return nil, nil
}

func (m *mockPublicationService) Publish(ctx context.Context, userID, publicationID string) (*publication.PublishResult, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, userID, publicationID)
	}
	return nil, nil
}

type mockPublicService struct {
	listPublicFn func(ctx context.Context, filter model.PublicFilter, baseURL string) (*publication.PublicPage, error)
}

func (m *mockPublicService) ListPublic(ctx context.Context, filter model.PublicFilter, baseURL string) (*publication.PublicPage, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx, filter, baseURL)
	}
	return &publication.PublicPage{}, nil
}

type mockLinkedInService struct {
	authorizationURLFn func(userID string) (string, error)
	connectFn          func(ctx context.Context, code, state string) (*model.LinkedInConnection, error)
	statusFn           func(ctx context.Context, userID string) (*linkedin.Status, error)
	disconnectFn       func(ctx context.Context, userID string) error
}

func (m *mockLinkedInService) AuthorizationURL(userID string) (string, error) {
	if m.authorizationURLFn != nil {
		return m.authorizationURLFn(userID)
	}
	return "", nil
}

func (m *mockLinkedInService) Connect(ctx context.Context, code, state string) (*model.LinkedInConnection, error) {
	if m.connectFn != nil {
		return m.connectFn(ctx, code, state)
	}
	return &model.LinkedInConnection{}, nil
}

func (m *mockLinkedInService) Status(ctx context.Context, userID string) (*linkedin.Status, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return &linkedin.Status{}, nil
}

func (m *mockLinkedInService) Disconnect(ctx context.Context, userID string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID)
	}
	return nil
}

type mockAccountService struct {
	deleteFn func(ctx context.Context, claims *auth.Claims) error
}

func (m *mockAccountService) Delete(ctx context.Context, claims *auth.Claims) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, claims)
	}
	return nil
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface        = (*auth.Service)(nil)
	_ PublicationServiceInterface = (*publication.Service)(nil)
	_ PublicServiceInterface      = (*publication.Service)(nil)
	_ LinkedInServiceInterface    = (*linkedin.Service)(nil)
	_ AccountServiceInterface     = (*account.Service)(nil)
	_ AuthServiceInterface        = (*mockAuthService)(nil)
	_ PublicationServiceInterface = (*mockPublicationService)(nil)
	_ PublicServiceInterface      = (*mockPublicService)(nil)
	_ LinkedInServiceInterface    = (*mockLinkedInService)(nil)
	_ AccountServiceInterface     = (*mockAccountService)(nil)
)

// --- テストヘルパー ---

func testClaims(userID string) *auth.Claims {
	return &auth.Claims{
		Email:            userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: "jti-" + userID},
	}
}

// withClaims はテスト用にリクエストコンテキストへ認証済みクレームを注入するヘルパー。
func withClaims(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithClaims(r.Context(), testClaims(userID)))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// decodeBody はレスポンスボディをmapにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["code"] != code {
		t.Errorf("code = %v, want %s", body["code"], code)
	}
}
