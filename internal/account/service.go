// Package account はアカウント削除を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/arsia/internal/auth"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/repository"
	"github.com/hitoshi/arsia/internal/storage"
)

// SessionRevoker は現在のセッションを失効させる。
type SessionRevoker interface {
	Logout(ctx context.Context, claims *auth.Claims) error
}

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo        repository.UserRepository
	publicationRepo repository.PublicationRepository
	store           storage.Storage
	sessions        SessionRevoker
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	publicationRepo repository.PublicationRepository,
	store storage.Storage,
	sessions SessionRevoker,
) *Service {
	return &Service{
		userRepo:        userRepo,
		publicationRepo: publicationRepo,
		store:           store,
		sessions:        sessions,
	}
}

// Delete はユーザーを削除する。
// 投稿はCASCADEで削除され、保存済み画像と現在のセッションはベストエフォートで後始末する。
func (s *Service) Delete(ctx context.Context, claims *auth.Claims) error {
	userID := claims.UserID()

	// 1. ユーザーの存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	// 2. 削除前に画像参照を控える
	refs, err := s.publicationRepo.ListImageURLsByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list image refs: %w", err)
	}

	// 3. ユーザーを削除（publicationsはCASCADE）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	// 4. 画像を削除
	failed := 0
	for _, ref := range refs {
		if !s.store.Owns(ref) {
			continue
		}
		if err := s.store.Delete(ctx, ref); err != nil {
			failed++
			slog.Warn("failed to delete image of deleted account",
				slog.String("image_ref", ref),
				slog.String("error", err.Error()),
			)
		}
	}

	// 5. 現在のトークンを失効
	if err := s.sessions.Logout(ctx, claims); err != nil {
		slog.Warn("failed to revoke session of deleted account",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("account deleted",
		slog.String("user_id", userID),
		slog.Int("images", len(refs)),
		slog.Int("image_delete_failures", failed),
	)
	return nil
}
