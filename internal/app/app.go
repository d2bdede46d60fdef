package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/arsia/internal/account"
	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/caption"
	"github.com/hitoshi/arsia/internal/config"
	"github.com/hitoshi/arsia/internal/database"
	"github.com/hitoshi/arsia/internal/enhance"
	"github.com/hitoshi/arsia/internal/handler"
	"github.com/hitoshi/arsia/internal/linkedin"
	"github.com/hitoshi/arsia/internal/logger"
	"github.com/hitoshi/arsia/internal/metrics"
	"github.com/hitoshi/arsia/internal/middleware"
	"github.com/hitoshi/arsia/internal/publication"
	"github.com/hitoshi/arsia/internal/repository"
	"github.com/hitoshi/arsia/internal/security"
	"github.com/hitoshi/arsia/internal/storage"
	"github.com/hitoshi/arsia/internal/worker/cleanup"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば環境変数として読み込む（既存の環境変数が優先）
	config.LoadDotEnv()

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. ログレベルを反映
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("api_url", cfg.APIURL),
	)

	switch inv.Command {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, inv.Rollback)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はAPIサーバーの構成要素をまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンドで動作する構成要素を停止する。
func (s *server) close() {
	s.rateLimiter.Stop()
}

// newServer は全依存関係をワイヤリングし、APIのHTTPハンドラーを構築する。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	pubRepo := repository.NewPostgresPublicationRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 画像ストレージと外部URLの画像取得
	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	fetcher := security.NewImageFetcher(cfg.FetchTimeout, cfg.FetchMaxSize)
	images := storage.NewResolver(store, fetcher)
	sanitizer := security.NewTextSanitizer()

	// 4. 認証
	tokens := auth.NewTokenManager(cfg.SessionSecret, time.Duration(cfg.SessionMaxAge)*time.Second)
	authService := auth.NewService(userRepo, sessionRepo, tokens)

	// 5. キャプション生成
	captioner := caption.NewOpenAIGenerator(caption.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.CaptionTimeout,
	}, sanitizer, collector)

	// 6. LinkedIn連携（未設定ならnilのまま。インターフェースには型付きnilを入れない）
	var publisher publication.Publisher
	var linkedInService handler.LinkedInServiceInterface
	if cfg.LinkedInEnabled() {
		svc := linkedin.NewService(linkedin.Config{
			ClientID:              cfg.LinkedInClientID,
			ClientSecret:          cfg.LinkedInClientSecret,
			RedirectURL:           cfg.LinkedInRedirectURL,
			OrganizationName:      cfg.LinkedInOrganizationName,
			UseOrganizationScopes: cfg.LinkedInUseOrgScopes,
			Timeout:               cfg.LinkedInTimeout,
			StateSecret:           cfg.SessionSecret,
		}, userRepo, images, collector)
		publisher = svc
		linkedInService = svc
	} else {
		slog.Warn("linkedin integration disabled: LINKEDIN_CLIENT_ID, LINKEDIN_CLIENT_SECRET or LINKEDIN_REDIRECT_URI not set")
	}

	// 7. ドメインサービスの初期化
	pubService := publication.NewService(
		pubRepo, store, enhance.NewEnhancer(collector), captioner, publisher, sanitizer, cfg.UploadMaxSize,
	)
	accountService := account.NewService(userRepo, pubRepo, store, authService)

	// 8. ローカルストレージの場合のみ/uploadsを配信する
	var uploads http.Handler
	if local, ok := store.(*storage.LocalStorage); ok {
		uploads = local.Handler()
	}

	// 9. ルーターの構築
	limits := middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPublicationCreate)
	limits.Recorder = collector
	rateLimiter := middleware.NewRateLimiter(limits)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:       authService,
		RateLimiter:         rateLimiter,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		CORSAllowedSuffixes: cfg.CORSAllowedSuffixes,
		Logger:              slog.Default(),
		StatusRecorder:      collector,

		AuthService:        authService,
		PublicationService: pubService,
		PublicService:      pubService,
		LinkedInService:    linkedInService,
		AccountService:     accountService,

		UploadsHandler: uploads,
		MetricsHandler: metrics.Handler(reg),

		Cookie: handler.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: tokens.MaxAge(),
		},
		APIURL:             cfg.APIURL,
		FrontendURL:        cfg.FrontendURL,
		UploadMaxSize:      cfg.UploadMaxSize,
		ExposeErrorDetails: !cfg.IsProduction(),
	})

	return &server{handler: router, rateLimiter: rateLimiter}, nil
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録するレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := newServer(context.Background(), cfg, db, newRegistry())
	if err != nil {
		return err
	}
	defer srv.close()

	// 3. HTTPサーバーの起動
	// 画像アップロードとキャプション生成を含むため、書き込みタイムアウトはキャプションのタイムアウトより長くする
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CaptionTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(httpServer, "API server")
}

// serveUntilSignal はHTTPサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(httpServer *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen failed: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れ失効セッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス（WORKER_METRICS_PORTが設定されている場合のみ公開）
	reg := newRegistry()
	collector := metrics.NewCollector(reg)
	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), collector, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを適用する。rollbackなら直近の1件を巻き戻す。
func runMigrate(cfg *config.Config, rollback bool) error {
	log := slog.With(slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))

	if rollback {
		log.Info("rolling back last database migration")
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	} else {
		log.Info("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info("database migrations completed",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せ字にする。
// パースできないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
