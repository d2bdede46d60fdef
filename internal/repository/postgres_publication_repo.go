package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/arsia/internal/model"
)

// publicationColumns はpublicationsテーブルから読み出すカラムの一覧。scanPublicationと順序を合わせること。
const publicationColumns = `id, user_id, title, location, work_type, date, image_url, image_blurhash,
	seo_text, tags, status, created_at, published_at, linkedin_post_id`

// PostgresPublicationRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPublicationRepo struct {
	db *sql.DB
}

// NewPostgresPublicationRepo はPostgresPublicationRepoを生成する。
func NewPostgresPublicationRepo(db *sql.DB) *PostgresPublicationRepo {
	return &PostgresPublicationRepo{db: db}
}

func scanPublication(row interface{ Scan(dest ...any) error }) (*model.Publication, error) {
	p := &model.Publication{}
	var (
		tags        pq.StringArray
		status      string
		publishedAt sql.NullTime
		postID      sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Location, &p.WorkType, &p.Date,
		&p.ImageURL, &p.ImageBlurHash, &p.SEOText, &tags, &status,
		&p.CreatedAt, &publishedAt, &postID,
	)
	if err != nil {
		return nil, err
	}
	p.Tags = []string(tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.Status = model.PublicationStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	if postID.Valid {
		id := postID.String
		p.LinkedInPostID = &id
	}
	return p, nil
}

func scanPublications(rows *sql.Rows) ([]*model.Publication, error) {
	defer rows.Close()

	publications := make([]*model.Publication, 0)
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		publications = append(publications, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate publications: %w", err)
	}
	return publications, nil
}

// Create は下書き状態の投稿を作成する。
func (r *PostgresPublicationRepo) Create(ctx context.Context, p *model.Publication) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO publications
			(id, user_id, title, location, work_type, date, image_url, image_blurhash,
			 seo_text, tags, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.Title, p.Location, p.WorkType, p.Date, p.ImageURL, p.ImageBlurHash,
		p.SEOText, pq.Array(p.Tags), string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert publication: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPublicationRepo) FindByID(ctx context.Context, id string) (*model.Publication, error) {
	p, err := scanPublication(r.db.QueryRowContext(ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find publication by ID: %w", err)
	}
	return p, nil
}

// ListByUserID はユーザーの投稿一覧を作成日時の降順で返す。
func (r *PostgresPublicationRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Publication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+publicationColumns+` FROM publications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	return scanPublications(rows)
}

// ListImageURLsByUserID はユーザーの全投稿の画像参照を返す。
func (r *PostgresPublicationRepo) ListImageURLsByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_url FROM publications WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list image urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan image url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate image urls: %w", err)
	}
	return urls, nil
}

// MarkPublished は下書きの投稿を公開済みに遷移させる。
// status = 'draft' の行のみを更新するため、既に公開済みの場合はnilを返す。
// published_atはこの遷移でのみ設定される。
func (r *PostgresPublicationRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) (*model.Publication, error) {
	p, err := scanPublication(r.db.QueryRowContext(ctx,
		`UPDATE publications
		 SET status = 'published', published_at = $2
		 WHERE id = $1 AND status = 'draft'
		 RETURNING `+publicationColumns,
		id, publishedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark publication as published: %w", err)
	}
	return p, nil
}

// SetLinkedInPostID は公開済み投稿にLinkedInの投稿IDを記録する。
func (r *PostgresPublicationRepo) SetLinkedInPostID(ctx context.Context, id, postID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE publications SET linkedin_post_id = $2
		 WHERE id = $1 AND status = 'published'`,
		id, postID,
	)
	if err != nil {
		return fmt.Errorf("failed to set linkedin post id: %w", err)
	}
	return requireOneRow(result, "publication", id)
}

// ListPublished は公開APIの条件に一致する公開済み投稿と総件数を返す。
// workTypeが空の場合は絞り込まない。
func (r *PostgresPublicationRepo) ListPublished(ctx context.Context, filter model.PublicFilter) ([]*model.Publication, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM publications
		 WHERE user_id = $1 AND status = 'published'
		   AND ($2::text = '' OR work_type = $2::text)`,
		filter.ArtisanID, filter.WorkType,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count published publications: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+publicationColumns+` FROM publications
		 WHERE user_id = $1 AND status = 'published'
		   AND ($2::text = '' OR work_type = $2::text)
		 ORDER BY COALESCE(published_at, created_at) DESC, created_at DESC
		 LIMIT $3 OFFSET $4`,
		filter.ArtisanID, filter.WorkType, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list published publications: %w", err)
	}
	publications, err := scanPublications(rows)
	if err != nil {
		return nil, 0, err
	}
	return publications, total, nil
}

// compile-time interface check
var _ PublicationRepository = (*PostgresPublicationRepo)(nil)
