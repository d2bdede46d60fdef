// Package publication は投稿（下書き作成、公開、公開一覧）のドメインロジックを提供する。
package publication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/arsia/internal/caption"
	"github.com/hitoshi/arsia/internal/enhance"
	"github.com/hitoshi/arsia/internal/linkedin"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/repository"
	"github.com/hitoshi/arsia/internal/storage"
	"github.com/hitoshi/arsia/internal/upload"
)

// 公開一覧のページング既定値。
const (
	DefaultPublicLimit = 20
	MaxPublicLimit     = 100
)

// 入力フィールドの最大文字数。
const (
	maxTitleLength    = 200
	maxLocationLength = 200
	maxWorkTypeLength = 100
)

// dateLayouts は撮影日・施工日として受け付ける形式。
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ImageEnhancer は画像補正を行う。
type ImageEnhancer interface {
	Enhance(data []byte, contentType string) enhance.Result
}

// Publisher は投稿を外部SNSへ公開する。
type Publisher interface {
	Publish(ctx context.Context, userID string, pub *model.Publication) (string, error)
}

// TextSanitizer は利用者入力からマークアップを取り除く。
type TextSanitizer interface {
	StripTags(text string) string
}

// CreateInput は下書き作成の入力値。
type CreateInput struct {
	Title    string
	Location string
	WorkType string
	Date     string
}

// LinkedInResult はLinkedInへの公開結果。
// 未接続の場合はPublished=falseかつErrorは空になる。
type LinkedInResult struct {
	Published bool
	PostID    string
	Error     string
}

// PublishResult は公開処理の結果。
type PublishResult struct {
	Publication *model.Publication
	LinkedIn    LinkedInResult
}

// PublicPage は公開一覧の1ページ分。
type PublicPage struct {
	Publications []*model.Publication
	Total        int
	Limit        int
	Offset       int
	HasMore      bool
}

// Service は投稿のサービス層。
type Service struct {
	repo      repository.PublicationRepository
	store     storage.Storage
	enhancer  ImageEnhancer
	captioner caption.Generator
	publisher Publisher
	sanitizer TextSanitizer
	blurHash  func(data []byte) (string, error)
	maxSize   int64
	now       func() time.Time
}

// NewService はServiceを生成する。publisherがnilの場合はLinkedInへの公開を行わない。
func NewService(
	repo repository.PublicationRepository,
	store storage.Storage,
	enhancer ImageEnhancer,
	captioner caption.Generator,
	publisher Publisher,
	sanitizer TextSanitizer,
	maxSize int64,
) *Service {
	if maxSize <= 0 {
		maxSize = upload.DefaultMaxSize
	}
	return &Service{
		repo:      repo,
		store:     store,
		enhancer:  enhancer,
		captioner: captioner,
		publisher: publisher,
		sanitizer: sanitizer,
		blurHash:  enhance.BlurHash,
		maxSize:   maxSize,
		now:       time.Now,
	}
}

// List はユーザーの投稿一覧を作成日時の降順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Publication, error) {
	pubs, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	return pubs, nil
}

// Create は画像を補正・保存し、キャプションを生成して下書きを作成する。
// キャプション生成に失敗した場合は保存済みの画像を削除し、下書きは作成しない。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput, img *upload.Image) (*model.Publication, error) {
	// 1. 入力検証
	if img == nil {
		return nil, model.NewInvalidUploadError("Image requise")
	}
	title := s.clean(input.Title, maxTitleLength)
	if title == "" {
		return nil, model.NewValidationError("Titre requis")
	}
	location := s.clean(input.Location, maxLocationLength)
	workType := s.clean(input.WorkType, maxWorkTypeLength)
	date, err := s.parseDate(input.Date)
	if err != nil {
		return nil, err
	}

	// 2. 画像補正（失敗時は元画像のまま）
	enhanced := s.enhancer.Enhance(img.Data, img.ContentType)

	// 3. 保存
	name, err := upload.GenerateName(img.Ext, s.now())
	if err != nil {
		return nil, err
	}
	ref, err := s.store.Save(ctx, name, enhanced.Data, enhanced.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	// 4. プレースホルダー（失敗しても空のまま続行）
	hash, err := s.blurHash(enhanced.Data)
	if err != nil {
		slog.Debug("blurhash not computed", slog.String("error", err.Error()))
		hash = ""
	}

	// 5. キャプション生成（失敗したら画像を消して中断）
	generated, err := s.captioner.Generate(ctx, enhanced.Data, enhanced.ContentType, caption.Metadata{
		Title:    title,
		Location: location,
		WorkType: workType,
		Date:     input.Date,
	})
	if err != nil {
		slog.Error("caption generation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.discard(ctx, ref)
		return nil, model.NewCaptionFailedError()
	}

	// 6. 下書きとして保存
	pub := &model.Publication{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		Location:      location,
		WorkType:      workType,
		Date:          date,
		ImageURL:      ref,
		ImageBlurHash: hash,
		SEOText:       generated.SEOText,
		Tags:          generated.Tags,
		Status:        model.PublicationStatusDraft,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, pub); err != nil {
		s.discard(ctx, ref)
		return nil, fmt.Errorf("failed to create publication: %w", err)
	}

	slog.Info("publication draft created",
		slog.String("user_id", userID),
		slog.String("publication_id", pub.ID),
		slog.String("enhancement", enhanced.Outcome),
	)
	return pub, nil
}

// Publish は下書きを公開済みにし、LinkedIn接続済みなら投稿する。
// ローカルの遷移を先に確定させ、LinkedInの失敗は結果に含めて返す。
func (s *Service) Publish(ctx context.Context, userID, publicationID string) (*PublishResult, error) {
	// 1. 存在・所有者・状態の確認
	if _, err := uuid.Parse(publicationID); err != nil {
		return nil, model.NewPublicationNotFoundError(publicationID)
	}
	pub, err := s.repo.FindByID(ctx, publicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find publication: %w", err)
	}
	if pub == nil {
		return nil, model.NewPublicationNotFoundError(publicationID)
	}
	if pub.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	if pub.IsPublished() {
		return nil, model.NewAlreadyPublishedError()
	}

	// 2. draft -> published を条件付き更新で確定（同時リクエストは片方のみ成功）
	published, err := s.repo.MarkPublished(ctx, publicationID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to mark publication published: %w", err)
	}
	if published == nil {
		return nil, model.NewAlreadyPublishedError()
	}

	result := &PublishResult{Publication: published}
	if s.publisher == nil {
		return result, nil
	}

	// 3. LinkedInへ投稿（失敗してもローカルの公開は維持）
	postID, err := s.publisher.Publish(ctx, userID, published)
	switch {
	case errors.Is(err, linkedin.ErrNotConnected):
		return result, nil
	case err != nil:
		var pe *linkedin.PublishError
		if errors.As(err, &pe) {
			result.LinkedIn.Error = pe.Message()
		} else {
			result.LinkedIn.Error = "Erreur lors de la publication sur LinkedIn"
		}
		slog.Warn("publication published locally without linkedin post",
			slog.String("publication_id", publicationID),
			slog.String("error", err.Error()),
		)
		return result, nil
	}

	// 4. LinkedInの投稿IDを記録
	result.LinkedIn.Published = true
	result.LinkedIn.PostID = postID
	published.LinkedInPostID = &postID
	if err := s.repo.SetLinkedInPostID(ctx, publicationID, postID); err != nil {
		slog.Error("failed to record linkedin post id",
			slog.String("publication_id", publicationID),
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
	}
	return result, nil
}

// ListPublic は公開APIの条件で公開済み投稿を返す。
// limitは1〜100に丸め、offsetは負なら0にする。画像参照はbaseURLで絶対URLにする。
func (s *Service) ListPublic(ctx context.Context, filter model.PublicFilter, baseURL string) (*PublicPage, error) {
	if _, err := uuid.Parse(filter.ArtisanID); err != nil || filter.ArtisanID == "" {
		return nil, model.NewInvalidArtisanIDError()
	}
	filter.Limit = ClampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.WorkType = strings.TrimSpace(filter.WorkType)

	pubs, total, err := s.repo.ListPublished(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list public publications: %w", err)
	}
	for _, p := range pubs {
		p.ImageURL = AbsoluteURL(baseURL, p.ImageURL)
	}

	return &PublicPage{
		Publications: pubs,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		HasMore:      filter.Offset+len(pubs) < total,
	}, nil
}

// ClampLimit はページサイズを既定値と上限に収める。0以下は既定値にする。
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPublicLimit
	case limit > MaxPublicLimit:
		return MaxPublicLimit
	default:
		return limit
	}
}

// AbsoluteURL は相対参照をbaseURLで絶対URLにする。既に絶対URLならそのまま返す。
func AbsoluteURL(baseURL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimRight(baseURL, "/") + ref
}

func (s *Service) clean(text string, maxRunes int) string {
	if s.sanitizer != nil {
		text = s.sanitizer.StripTags(text)
	}
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxRunes {
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}

func (s *Service) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, model.NewValidationError("Date invalide (format attendu: AAAA-MM-JJ)")
}

// discard は中断した作成処理の画像を削除する。失敗はログのみ。
func (s *Service) discard(ctx context.Context, ref string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), ref); err != nil {
		slog.Warn("failed to delete orphaned image",
			slog.String("image_ref", ref),
			slog.String("error", err.Error()),
		)
	}
}
