// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/arsia/internal/model"
)

// ErrDuplicateEmail は既に登録済みのメールアドレスでユーザーを作成しようとした場合のエラー。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// SaveLinkedInConnection はLinkedIn接続情報の全カラムを1回の更新で書き込む。
	SaveLinkedInConnection(ctx context.Context, userID string, conn model.LinkedInConnection) error

	// ClearLinkedInConnection はLinkedIn接続情報の全カラムをクリアする。
	ClearLinkedInConnection(ctx context.Context, userID string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するpublicationsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// PublicationRepository は投稿データの永続化インターフェース。
type PublicationRepository interface {
	// Create は下書き状態の投稿を作成する。
	Create(ctx context.Context, publication *model.Publication) error

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Publication, error)

	// ListByUserID はユーザーの投稿一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Publication, error)

	// ListImageURLsByUserID はユーザーの全投稿の画像参照を返す。
	ListImageURLsByUserID(ctx context.Context, userID string) ([]string, error)

	// MarkPublished は下書きの投稿を公開済みに遷移させる。
	// status = 'draft' の行のみを更新するため、既に公開済みの場合はnilを返す。
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) (*model.Publication, error)

	// SetLinkedInPostID は公開済み投稿にLinkedInの投稿IDを記録する。
	SetLinkedInPostID(ctx context.Context, id, postID string) error

	// ListPublished は公開APIの条件に一致する公開済み投稿と総件数を返す。
	// COALESCE(published_at, created_at)の降順、同値はcreated_atの降順で並べる。
	ListPublished(ctx context.Context, filter model.PublicFilter) ([]*model.Publication, int, error)
}

// SessionRepository はログアウト済みセッションの失効リストを永続化するインターフェース。
type SessionRepository interface {
	// Revoke はトークンIDを失効リストに登録する。既に登録済みの場合は何もしない。
	Revoke(ctx context.Context, session *model.RevokedSession) error

	// IsRevoked はトークンIDが失効済みかを返す。
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired は有効期限を過ぎた失効エントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
