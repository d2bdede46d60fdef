// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/model"
)

// SessionCookieName はセッショントークンを格納するCookie名。
const SessionCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// SessionAuthenticator はセッショントークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// TokenFromRequest はCookie、次にAuthorizationヘッダー（Bearer）からトークンを取り出す。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

// NewSessionMiddleware はリクエストのセッショントークンを検証するミドルウェアを返す。
// 認証済みユーザーIDとクレームをリクエストコンテキストに注入する。
// 欠落・不正・期限切れ・失効のいずれも同一の401を返す。
func NewSessionMiddleware(authenticator SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンを取得
			token := TokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 2. 署名・期限・失効を検証
			claims, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// NewOptionalSessionMiddleware はトークンが有効な場合のみコンテキストに注入し、
// 無効・欠落でもリクエストを通過させるミドルウェアを返す。ログアウトで使用する。
func NewOptionalSessionMiddleware(authenticator SessionAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := TokenFromRequest(r); token != "" {
				if claims, err := authenticator.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(ContextWithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithClaims はコンテキストにクレームとそのユーザーIDを注入する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	noteRequestUser(ctx, claims.UserID())
	return ContextWithUserID(ctx, claims.UserID())
}
