package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/arsia/internal/embed"
	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/publication"
)

// PublicServiceInterface は公開APIと埋め込みが必要とするサービスインターフェース。
type PublicServiceInterface interface {
	ListPublic(ctx context.Context, filter model.PublicFilter, baseURL string) (*publication.PublicPage, error)
}

// PublicHandler は認証不要の公開APIと埋め込み用エンドポイントのHTTPハンドラー。
type PublicHandler struct {
	errorResponder
	service PublicServiceInterface
	apiURL  string
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(service PublicServiceInterface, apiURL string, exposeDetails bool) *PublicHandler {
	return &PublicHandler{
		errorResponder: errorResponder{exposeDetails: exposeDetails},
		service:        service,
		apiURL:         apiURL,
	}
}

// publicPublicationResponse は公開APIの投稿情報。
type publicPublicationResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ImageURL    string    `json:"imageUrl"`
	BlurHash    string    `json:"blurHash"`
	SEOText     string    `json:"seoText"`
	Tags        []string  `json:"tags"`
	Location    string    `json:"location"`
	WorkType    string    `json:"workType"`
	Date        time.Time `json:"date"`
	PublishedAt time.Time `json:"publishedAt"`
}

type paginationResponse struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

type publicListResponse struct {
	Success      bool                        `json:"success"`
	ArtisanID    string                      `json:"artisanId"`
	Publications []publicPublicationResponse `json:"publications"`
	Pagination   paginationResponse          `json:"pagination"`
}

// ListPublications は職人の公開済み投稿をページングして返す。
// GET /api/public/publications?artisanId=&workType=&limit=&offset=
func (h *PublicHandler) ListPublications(w http.ResponseWriter, r *http.Request) {
	filter := parsePublicFilter(r)

	page, err := h.service.ListPublic(r.Context(), filter, h.apiURL)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]publicPublicationResponse, 0, len(page.Publications))
	for _, p := range page.Publications {
		items = append(items, toPublicResponse(p))
	}

	writeJSON(w, http.StatusOK, publicListResponse{
		Success:      true,
		ArtisanID:    filter.ArtisanID,
		Publications: items,
		Pagination: paginationResponse{
			Total:   page.Total,
			Limit:   page.Limit,
			Offset:  page.Offset,
			HasMore: page.HasMore,
		},
	})
}

// PortfolioScript は埋め込み用スクリプトを返す。
// GET /embed/portfolio.js
func (h *PublicHandler) PortfolioScript(w http.ResponseWriter, r *http.Request) {
	script, err := embed.Script(h.apiURL)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(script)
}

// PortfolioHTML はサーバー側で描画したポートフォリオのHTML断片を返す。
// GET /embed/portfolio.html?artisanId=
func (h *PublicHandler) PortfolioHTML(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListPublic(r.Context(), parsePublicFilter(r), h.apiURL)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	// 描画失敗時にエラーレスポンスを返せるよう、いったんバッファに書く
	var buf bytes.Buffer
	if err := embed.RenderPortfolio(&buf, page.Publications); err != nil {
		slog.Error("failed to render portfolio", slog.String("error", err.Error()))
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// parsePublicFilter はクエリパラメータから公開APIの条件を読み取る。
// 数値でないlimit/offsetは未指定として扱い、範囲の丸めはサービス層で行う。
func parsePublicFilter(r *http.Request) model.PublicFilter {
	q := r.URL.Query()
	filter := model.PublicFilter{
		ArtisanID: q.Get("artisanId"),
		WorkType:  q.Get("workType"),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	return filter
}

// toPublicResponse は公開APIの投稿情報に変換する。公開日時がなければ作成日時を使う。
func toPublicResponse(p *model.Publication) publicPublicationResponse {
	publishedAt := p.CreatedAt
	if p.PublishedAt != nil {
		publishedAt = *p.PublishedAt
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return publicPublicationResponse{
		ID:          p.ID,
		Title:       p.Title,
		ImageURL:    p.ImageURL,
		BlurHash:    p.ImageBlurHash,
		SEOText:     p.SEOText,
		Tags:        tags,
		Location:    p.Location,
		WorkType:    p.WorkType,
		Date:        p.Date,
		PublishedAt: publishedAt,
	}
}
