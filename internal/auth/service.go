// Package auth はメールアドレスとパスワードによる認証、セッショントークン管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/repository"
)

// Session は発行済みのセッショントークンとその内容を表す。
type Session struct {
	Token  string
	Claims *Claims
	User   *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenManager
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenManager,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		now:         time.Now,
	}
}

// NormalizeEmail はメールアドレスを前後の空白除去と小文字化で正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを登録し、セッションを発行する。
// メールアドレスが登録済みの場合はパスワードに関わらずEMAIL_TAKENを返す。
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	// 1. 入力検証（ハンドラーでも検証するが、サービス単体でも不変条件を守る）
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email et mot de passe requis")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("Email invalide")
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Le mot de passe doit contenir au moins %d caractères", MinPasswordLength))
	}

	// 2. 重複チェック
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	// 3. パスワードをハッシュ化してユーザーを作成
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合も同じエラーにする
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))

	// 4. セッションを発行
	return s.issue(user)
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// 未登録メールとパスワード誤りは同一のエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email et mot de passe requis")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		burnPasswordCheck(password)
		return nil, model.NewInvalidCredentialsError()
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Authenticate はトークンを検証し、失効済みでないことを確認してクレームを返す。
// 失敗時は理由に関わらずErrInvalidTokenを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := s.sessionRepo.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		slog.Error("failed to check session revocation",
			slog.String("user_id", claims.UserID()),
			slog.String("error", err.Error()),
		)
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Logout はトークンIDを失効リストに登録する。
// クレームがnilの場合（未認証のログアウト）は何もしない。
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return nil
	}
	err := s.sessionRepo.Revoke(ctx, &model.RevokedSession{
		TokenID:   claims.TokenID(),
		UserID:    claims.UserID(),
		ExpiresAt: claims.ExpiresAtTime(),
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.UserID()))
	return nil
}

// MaxAge はセッションの有効期間を返す。
func (s *Service) MaxAge() time.Duration {
	return s.tokens.MaxAge()
}

func (s *Service) issue(user *model.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &Session{Token: token, Claims: claims, User: user}, nil
}
