package model

import "time"

// PublicationStatus は投稿のライフサイクル状態を表す。
type PublicationStatus string

const (
	// PublicationStatusDraft は下書き状態。
	PublicationStatusDraft PublicationStatus = "draft"
	// PublicationStatusPublished は公開済み状態。draft -> published の一方向のみ遷移する。
	PublicationStatusPublished PublicationStatus = "published"
)

// MaxSEOTextLength は生成キャプションの最大文字数（rune単位）。
const MaxSEOTextLength = 500

// Publication は現場写真から生成された投稿を表す。
type Publication struct {
	ID             string
	UserID         string
	Title          string
	Location       string
	WorkType       string
	Date           time.Time
	ImageURL       string
	ImageBlurHash  string
	SEOText        string
	Tags           []string
	Status         PublicationStatus
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LinkedInPostID *string
}

// IsPublished は公開済みかどうかを返す。
func (p *Publication) IsPublished() bool {
	return p.Status == PublicationStatusPublished
}

// PublicFilter は公開API向けの一覧取得条件を表す。
type PublicFilter struct {
	ArtisanID string
	WorkType  string
	Limit     int
	Offset    int
}
