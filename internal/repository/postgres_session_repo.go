package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/arsia/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッション失効リストのリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Revoke はトークンIDを失効リストに登録する。既に登録済みの場合は何もしない。
func (r *PostgresSessionRepo) Revoke(ctx context.Context, session *model.RevokedSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_sessions (token_id, user_id, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_id) DO NOTHING`,
		session.TokenID, session.UserID, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *PostgresSessionRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_sessions WHERE token_id = $1)`,
		tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked session: %w", err)
	}
	return revoked, nil
}

// purgeBatchSize は1回のDELETEで消す失効エントリの上限。
const purgeBatchSize = 1000

// DeleteExpired は有効期限を過ぎた失効エントリをpurgeBatchSize件ずつ削除し、合計件数を返す。
// 期限切れのトークンは署名検証の段階で拒否されるため、失効リストに残す必要がない。
// 途中でctxがキャンセルされた場合は、それまでの削除件数とエラーを返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM revoked_sessions
			 WHERE token_id IN (
			   SELECT token_id FROM revoked_sessions WHERE expires_at < $1 LIMIT $2
			 )`,
			now, purgeBatchSize,
		)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired revoked sessions: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
		if n < purgeBatchSize {
			return total, nil
		}
	}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
