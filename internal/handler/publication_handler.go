package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/arsia/internal/middleware"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/publication"
	"github.com/hitoshi/arsia/internal/upload"
)

// PublicationServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PublicationServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Publication, error)
	Create(ctx context.Context, userID string, input publication.CreateInput, img *upload.Image) (*model.Publication, error)
	Publish(ctx context.Context, userID, publicationID string) (*publication.PublishResult, error)
}

// PublicationHandler は投稿管理のHTTPハンドラー。
type PublicationHandler struct {
	errorResponder
	service       PublicationServiceInterface
	apiURL        string
	uploadMaxSize int64
}

// NewPublicationHandler はPublicationHandlerを生成する。
// apiURLは相対の画像参照を絶対URLにするために使う。
func NewPublicationHandler(service PublicationServiceInterface, apiURL string, uploadMaxSize int64, exposeDetails bool) *PublicationHandler {
	return &PublicationHandler{
		errorResponder: errorResponder{exposeDetails: exposeDetails},
		service:        service,
		apiURL:         apiURL,
		uploadMaxSize:  uploadMaxSize,
	}
}

// publicationResponse は投稿情報のAPIレスポンス。
type publicationResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Title          string     `json:"title"`
	Location       string     `json:"location"`
	WorkType       string     `json:"workType"`
	Date           time.Time  `json:"date"`
	ImageURL       string     `json:"imageUrl"`
	BlurHash       string     `json:"blurHash"`
	SEOText        string     `json:"seoText"`
	Tags           []string   `json:"tags"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	PublishedAt    *time.Time `json:"publishedAt"`
	LinkedInPostID *string    `json:"linkedinPostId,omitempty"`
}

// linkedInResultResponse は公開時のLinkedIn投稿結果。
type linkedInResultResponse struct {
	Published bool    `json:"published"`
	PostID    *string `json:"postId"`
	Error     *string `json:"error"`
}

// List は自分の投稿一覧を新しい順に返す。
// GET /api/publications
func (h *PublicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	pubs, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]publicationResponse, 0, len(pubs))
	for _, p := range pubs {
		items = append(items, h.toResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"publications": items,
	})
}

// Create は画像をアップロードし、キャプションを生成して下書きを作成する。
// POST /api/publications (multipart/form-data: image, title, location, workType, date)
func (h *PublicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	// 1. マルチパートを読み込み、画像を検証
	up, err := upload.ParseRequest(w, r, h.uploadMaxSize)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	// 2. 下書きを作成
	pub, err := h.service.Create(r.Context(), userID, publication.CreateInput{
		Title:    up.Fields.Get("title"),
		Location: up.Fields.Get("location"),
		WorkType: up.Fields.Get("workType"),
		Date:     up.Fields.Get("date"),
	}, up.Image)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"publication": h.toResponse(pub),
	})
}

// Publish は下書きを公開し、LinkedIn接続済みなら投稿する。
// LinkedInの失敗はlinkedin.errorに含め、公開自体は成功として返す。
// POST /api/publications/{id}/publish
func (h *PublicationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.service.Publish(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	li := linkedInResultResponse{Published: result.LinkedIn.Published}
	if result.LinkedIn.PostID != "" {
		li.PostID = &result.LinkedIn.PostID
	}
	if result.LinkedIn.Error != "" {
		li.Error = &result.LinkedIn.Error
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"publication": h.toResponse(result.Publication),
		"linkedin":    li,
	})
}

// toResponse はmodel.PublicationからAPIレスポンスに変換する。
func (h *PublicationHandler) toResponse(p *model.Publication) publicationResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return publicationResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Title:          p.Title,
		Location:       p.Location,
		WorkType:       p.WorkType,
		Date:           p.Date,
		ImageURL:       publication.AbsoluteURL(h.apiURL, p.ImageURL),
		BlurHash:       p.ImageBlurHash,
		SEOText:        p.SEOText,
		Tags:           tags,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		PublishedAt:    p.PublishedAt,
		LinkedInPostID: p.LinkedInPostID,
	}
}
