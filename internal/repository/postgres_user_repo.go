package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/arsia/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// userColumns はusersテーブルから読み出すカラムの一覧。scanUserと順序を合わせること。
const userColumns = `id, email, password_hash,
	COALESCE(linkedin_access_token, ''), COALESCE(linkedin_refresh_token, ''),
	linkedin_token_expires_at, COALESCE(linkedin_person_urn, ''),
	COALESCE(linkedin_organization_urn, ''), COALESCE(linkedin_organization_name, ''),
	linkedin_connected, created_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	user := &model.User{}
	var expiresAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.LinkedIn.AccessToken, &user.LinkedIn.RefreshToken,
		&expiresAt, &user.LinkedIn.PersonURN,
		&user.LinkedIn.OrganizationURN, &user.LinkedIn.OrganizationName,
		&user.LinkedIn.Connected, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		user.LinkedIn.ExpiresAt = expiresAt.Time
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// SaveLinkedInConnection はLinkedIn接続情報の全カラムを1回の更新で書き込む。
// 接続済みでアクセストークンが空の値は保存前に拒否する。
func (r *PostgresUserRepo) SaveLinkedInConnection(ctx context.Context, userID string, conn model.LinkedInConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if !conn.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: conn.ExpiresAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
			linkedin_access_token = NULLIF($2, ''),
			linkedin_refresh_token = NULLIF($3, ''),
			linkedin_token_expires_at = $4,
			linkedin_person_urn = NULLIF($5, ''),
			linkedin_organization_urn = NULLIF($6, ''),
			linkedin_organization_name = NULLIF($7, ''),
			linkedin_connected = $8
		 WHERE id = $1`,
		userID, conn.AccessToken, conn.RefreshToken, expiresAt,
		conn.PersonURN, conn.OrganizationURN, conn.OrganizationName, conn.Connected,
	)
	if err != nil {
		return fmt.Errorf("failed to save linkedin connection: %w", err)
	}
	return requireOneRow(result, "user", userID)
}

// ClearLinkedInConnection はLinkedIn接続情報の全カラムをクリアする。
func (r *PostgresUserRepo) ClearLinkedInConnection(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
			linkedin_access_token = NULL,
			linkedin_refresh_token = NULL,
			linkedin_token_expires_at = NULL,
			linkedin_person_urn = NULL,
			linkedin_organization_urn = NULL,
			linkedin_organization_name = NULL,
			linkedin_connected = false
		 WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear linkedin connection: %w", err)
	}
	return requireOneRow(result, "user", userID)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するpublicationsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireOneRow(result, "user", id)
}

// requireOneRow は更新対象の行が存在したことを確認する。
func requireOneRow(result sql.Result, entity, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
