// Package linkedin はLinkedInとのOAuth連携と投稿パイプラインを提供する。
// 接続（認可コード交換、個人URNと組織ページの解決）、接続状態の参照と解除、
// トークン更新を含む画像付き投稿を扱う。
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/arsia/internal/metrics"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/repository"
)

const (
	defaultAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	defaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"

	// defaultOrganizationLabel は組織名を取得できなかった場合の表示名。
	defaultOrganizationLabel = "Page entreprise"

	// mediaTitle は投稿画像に付けるタイトル。
	mediaTitle = "Publication Arsia"
)

var (
	memberScopes       = []string{"openid", "profile", "email", "w_member_social"}
	organizationScopes = []string{"r_organization_social", "w_organization_social"}
)

// Config はLinkedIn連携の設定。
type Config struct {
	ClientID              string
	ClientSecret          string
	RedirectURL           string
	OrganizationName      string
	UseOrganizationScopes bool
	Timeout               time.Duration
	StateSecret           string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// ImageSource は投稿画像の参照から内容を読み出す。
type ImageSource interface {
	Open(ctx context.Context, ref string) ([]byte, error)
}

// Status はLinkedIn接続状態を表す。
type Status struct {
	Connected        bool
	ExpiresAt        *time.Time
	OrganizationName string
	HasOrganization  bool
}

// Service はLinkedIn連携のビジネスロジックを提供する。
type Service struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	api        *Client
	states     *StateSigner
	users      repository.UserRepository
	images     ImageSource
	orgName    string
	orgScopes  bool
	metrics    metrics.MetricsCollector
	locks      *userLocks
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(cfg Config, users repository.UserRepository, images ImageSource, m metrics.MetricsCollector) *Service {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}

	scopes := append([]string{}, memberScopes...)
	if cfg.UseOrganizationScopes {
		scopes = append(scopes, organizationScopes...)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		api:        NewClient(cfg.APIBaseURL, httpClient),
		states:     NewStateSigner(cfg.StateSecret, DefaultStateTTL),
		users:      users,
		images:     images,
		orgName:    cfg.OrganizationName,
		orgScopes:  cfg.UseOrganizationScopes,
		metrics:    m,
		locks:      newUserLocks(),
		now:        time.Now,
	}
}

// AuthorizationURL はユーザーをLinkedInの認可画面へ送るURLを生成する。
// stateには署名付きのユーザーIDを埋め込む。
func (s *Service) AuthorizationURL(userID string) (string, error) {
	state, err := s.states.Sign(userID)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Connect は認可コールバックを処理し、接続情報を保存する。
// 組織ページの解決に失敗しても接続は成功として扱う。
func (s *Service) Connect(ctx context.Context, code, state string) (*model.LinkedInConnection, error) {
	// 1. stateを検証してユーザーを特定
	userID, err := s.states.Verify(state)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// 2. 認可コードをトークンに交換
	token, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	// 3. 個人URNと組織ページを解決
	personURN, err := s.api.PersonURN(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	conn := model.LinkedInConnection{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		PersonURN:    personURN,
		Connected:    true,
	}
	if s.orgScopes {
		urn, name, err := s.resolveOrganization(ctx, token.AccessToken)
		if err != nil {
			slog.Warn("linkedin organization page not resolved",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else {
			conn.OrganizationURN = urn
			conn.OrganizationName = name
		}
	}

	// 4. 接続情報を一括で保存
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.SaveLinkedInConnection(ctx, userID, conn); err != nil {
		return nil, fmt.Errorf("failed to save linkedin connection: %w", err)
	}

	slog.Info("linkedin connected",
		slog.String("user_id", userID),
		slog.Bool("has_organization", conn.OrganizationURN != ""),
	)
	return &conn, nil
}

// resolveOrganization は管理者である組織ページから投稿先を選ぶ。
// 設定名を含む組織を優先し、なければ最初の組織を使う。
func (s *Service) resolveOrganization(ctx context.Context, accessToken string) (string, string, error) {
	urns, err := s.api.AdminOrganizations(ctx, accessToken)
	if err != nil {
		return "", "", err
	}
	if len(urns) == 0 {
		return "", "", ErrNoOrganization
	}

	want := strings.ToLower(s.orgName)
	names := make(map[string]string, len(urns))
	for _, urn := range urns {
		name, err := s.api.OrganizationName(ctx, accessToken, urn)
		if err != nil {
			slog.Warn("failed to fetch linkedin organization details",
				slog.String("organization_urn", urn),
				slog.String("error", err.Error()),
			)
			continue
		}
		names[urn] = name
		if want != "" && strings.Contains(strings.ToLower(name), want) {
			return urn, name, nil
		}
	}

	first := urns[0]
	name := names[first]
	if name == "" {
		name = defaultOrganizationLabel
	}
	return first, name, nil
}

// Status はユーザーのLinkedIn接続状態を返す。
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	conn := user.LinkedIn
	status := &Status{
		Connected:        conn.Connected,
		OrganizationName: conn.OrganizationName,
		HasOrganization:  conn.OrganizationURN != "",
	}
	if !conn.ExpiresAt.IsZero() {
		exp := conn.ExpiresAt
		status.ExpiresAt = &exp
	}
	return status, nil
}

// Disconnect はLinkedIn接続情報をすべて削除する。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.users.ClearLinkedInConnection(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear linkedin connection: %w", err)
	}
	slog.Info("linkedin disconnected", slog.String("user_id", userID))
	return nil
}

// Publish は投稿をLinkedInへ公開し、LinkedIn側の投稿IDを返す。
// 未接続の場合はErrNotConnected、パイプラインの失敗は*PublishErrorを返す。
func (s *Service) Publish(ctx context.Context, userID string, pub *model.Publication) (string, error) {
	// 1. 有効なトークンを確保（期限切れなら更新して保存）
	conn, err := s.validConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return "", err
		}
		return "", s.fail(newPublishError(StepToken, false, err))
	}

	// 2. 投稿先を決定（組織ページ優先）
	target := conn.Target()
	organization := conn.OrganizationURN != ""
	if target == "" {
		return "", s.fail(newPublishError(StepTarget, false, ErrNoTarget))
	}

	// 3. 画像アセットをアップロード
	asset, err := s.uploadAsset(ctx, conn.AccessToken, target, pub.ImageURL)
	if err != nil {
		return "", s.fail(newPublishError(StepAsset, organization, err))
	}

	// 4. 投稿を作成
	postID, err := s.api.CreatePost(ctx, conn.AccessToken, Post{
		Author:     target,
		Commentary: Commentary(pub),
		Asset:      asset,
		MediaTitle: mediaTitle,
	})
	if err != nil {
		return "", s.fail(newPublishError(StepPost, organization, err))
	}

	s.metrics.RecordLinkedInPublish(StepPost, true)
	slog.Info("linkedin post created",
		slog.String("user_id", userID),
		slog.String("publication_id", pub.ID),
		slog.String("post_id", postID),
		slog.Bool("organization", organization),
	)
	return postID, nil
}

func (s *Service) uploadAsset(ctx context.Context, accessToken, owner, imageRef string) (string, error) {
	uploadURL, asset, err := s.api.RegisterUpload(ctx, accessToken, owner)
	if err != nil {
		return "", err
	}
	data, err := s.images.Open(ctx, imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	if err := s.api.UploadImage(ctx, accessToken, uploadURL, data, http.DetectContentType(data)); err != nil {
		return "", err
	}
	return asset, nil
}

func (s *Service) fail(pe *PublishError) *PublishError {
	s.metrics.RecordLinkedInPublish(pe.Step, false)
	slog.Warn("linkedin publish failed",
		slog.String("step", pe.Step),
		slog.Int("status", pe.Status),
		slog.String("error", pe.Err.Error()),
	)
	return pe
}

// validConnection は有効なアクセストークンを持つ接続情報を返す。
// 期限切れの場合はユーザー単位のロックを取り、再読込した上で1回だけ更新する。
// 同時に更新待ちしていたリクエストは、先行リクエストが保存したトークンを使う。
func (s *Service) validConnection(ctx context.Context, userID string) (model.LinkedInConnection, error) {
	conn, err := s.loadConnection(ctx, userID)
	if err != nil || !conn.Expired(s.now()) {
		return conn, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	conn, err = s.loadConnection(ctx, userID)
	if err != nil || !conn.Expired(s.now()) {
		return conn, err
	}
	return s.refresh(ctx, userID, conn)
}

func (s *Service) loadConnection(ctx context.Context, userID string) (model.LinkedInConnection, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.LinkedInConnection{}, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.LinkedIn.Connected || user.LinkedIn.AccessToken == "" {
		return model.LinkedInConnection{}, ErrNotConnected
	}
	return user.LinkedIn, nil
}

// refresh はリフレッシュトークンでアクセストークンを更新し、接続情報全体を保存する。
func (s *Service) refresh(ctx context.Context, userID string, conn model.LinkedInConnection) (model.LinkedInConnection, error) {
	if conn.RefreshToken == "" {
		s.metrics.RecordTokenRefresh(false)
		return conn, ErrNoRefreshToken
	}

	src := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: conn.RefreshToken})
	token, err := src.Token()
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return conn, fmt.Errorf("failed to refresh linkedin token: %w", err)
	}

	next := conn.WithTokens(token.AccessToken, token.RefreshToken, token.Expiry)
	if err := next.Validate(); err != nil {
		s.metrics.RecordTokenRefresh(false)
		return conn, err
	}
	if err := s.users.SaveLinkedInConnection(ctx, userID, next); err != nil {
		s.metrics.RecordTokenRefresh(false)
		return conn, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	s.metrics.RecordTokenRefresh(true)
	slog.Info("linkedin token refreshed", slog.String("user_id", userID))
	return next, nil
}

// oauthContext はトークンエンドポイントの呼び出しにタイムアウト付きクライアントを使わせる。
func (s *Service) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Commentary は投稿本文を組み立てる。
// タイトル、キャプション、所在地、ハッシュタグを空行区切りで並べ、空の要素は省く。
func Commentary(pub *model.Publication) string {
	sections := make([]string, 0, 4)
	if t := strings.TrimSpace(pub.Title); t != "" {
		sections = append(sections, t)
	}
	if t := strings.TrimSpace(pub.SEOText); t != "" {
		sections = append(sections, t)
	}
	if loc := strings.TrimSpace(pub.Location); loc != "" {
		sections = append(sections, "📍 "+loc)
	}

	hashtags := make([]string, 0, len(pub.Tags))
	for _, tag := range pub.Tags {
		if tag = strings.Join(strings.Fields(tag), ""); tag != "" {
			hashtags = append(hashtags, "#"+tag)
		}
	}
	if len(hashtags) > 0 {
		sections = append(sections, strings.Join(hashtags, " "))
	}
	return strings.Join(sections, "\n\n")
}
