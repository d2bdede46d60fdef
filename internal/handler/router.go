package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/arsia/internal/middleware"
)

// publicPathPrefixes は任意のオリジンから読み込まれる公開パス。
// credentialsを伴わないワイルドカードCORSを適用する。
var publicPathPrefixes = []string{"/api/public/", "/embed/"}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator       middleware.SessionAuthenticator
	RateLimiter         *middleware.RateLimiter
	CORSAllowedOrigins  []string
	CORSAllowedSuffixes []string
	Logger              *slog.Logger
	StatusRecorder      middleware.HTTPStatusRecorder // nilの場合はステータスを記録しない

	// サービス
	AuthService        AuthServiceInterface
	PublicationService PublicationServiceInterface
	PublicService      PublicServiceInterface
	LinkedInService    LinkedInServiceInterface // nilの場合はLinkedIn未設定として503を返す
	AccountService     AccountServiceInterface

	// 静的配信とメトリクス（nilの場合はルートを登録しない）
	UploadsHandler http.Handler
	MetricsHandler http.Handler

	// 設定
	Cookie             CookieConfig
	APIURL             string
	FrontendURL        string
	UploadMaxSize      int64
	ExposeErrorDetails bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → Metrics → CORS → SessionMiddleware → RateLimit(General)
//
// Recoveryをログの内側に置き、panicした要求も500としてアクセスログに残す。
//
// 公開API（/api/public/*）と埋め込み（/embed/*）はワイルドカードCORS、それ以外は許可リストのCORSを使う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware("/embed/"))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(corsByPath(
		middleware.NewPublicCORSMiddleware(),
		middleware.NewCORSMiddleware(deps.CORSAllowedOrigins, deps.CORSAllowedSuffixes),
	))

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookie, deps.ExposeErrorDetails)
	pubHandler := NewPublicationHandler(deps.PublicationService, deps.APIURL, deps.UploadMaxSize, deps.ExposeErrorDetails)
	publicHandler := NewPublicHandler(deps.PublicService, deps.APIURL, deps.ExposeErrorDetails)
	linkedInHandler := NewLinkedInHandler(deps.LinkedInService, deps.FrontendURL, deps.ExposeErrorDetails)
	accountHandler := NewAccountHandler(deps.AccountService, deps.Cookie, deps.ExposeErrorDetails)

	session := middleware.NewSessionMiddleware(deps.Authenticator)

	// --- 認証不要のルート ---
	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.UploadsHandler != nil {
		r.Handle("/uploads/*", deps.UploadsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.With(middleware.NewOptionalSessionMiddleware(deps.Authenticator)).Post("/logout", authHandler.Logout)
		r.With(session).Get("/me", authHandler.Me)
	})

	// LinkedInのコールバックは署名付きstateでユーザーを特定する
	r.Get("/api/linkedin/callback", linkedInHandler.Callback)

	r.Get("/api/public/publications", publicHandler.ListPublications)
	r.Get("/embed/portfolio.js", publicHandler.PortfolioScript)
	r.Get("/embed/portfolio.html", publicHandler.PortfolioHTML)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 投稿管理
		r.Route("/api/publications", func(r chi.Router) {
			r.Get("/", pubHandler.List)
			// POST /api/publications - 投稿作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.PublicationCreateMiddleware()).Post("/", pubHandler.Create)
			r.Post("/{id}/publish", pubHandler.Publish)
		})

		// LinkedIn連携（コールバックは認証不要のため個別に登録）
		r.Get("/api/linkedin/auth", linkedInHandler.Auth)
		r.Get("/api/linkedin/status", linkedInHandler.Status)
		r.Post("/api/linkedin/disconnect", linkedInHandler.Disconnect)

		// ユーザー管理
		r.Delete("/api/users/me", accountHandler.Delete)
	})

	return r
}

// Health はプロセスの稼働確認に応答する。
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "Arsia API is running",
	})
}

// corsByPath は公開パスとそれ以外で異なるCORSミドルウェアを適用する。
// プリフライトがルーティングより前に処理されるよう、最上位に配置する。
func corsByPath(public, private func(http.Handler) http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		publicNext := public(next)
		privateNext := private(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPathPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					publicNext.ServeHTTP(w, r)
					return
				}
			}
			privateNext.ServeHTTP(w, r)
		})
	}
}
