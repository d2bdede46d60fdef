package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/arsia/internal/model"
	"github.com/hitoshi/arsia/internal/publication"
)

const testArtisanID = "9b2f6f0e-3c7a-4d1e-8a55-0e6b7d8c9a10"

func publishedPublication(id string) *model.Publication {
	published := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return &model.Publication{
		ID:          id,
		UserID:      testArtisanID,
		Title:       "Terrasse en bois",
		Location:    "Nantes",
		WorkType:    "menuiserie",
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ImageURL:    "https://api.example.com/uploads/publication-2-xyz.jpg",
		SEOText:     "Une terrasse en pin traité.",
		Tags:        []string{"menuiserie", "terrasse"},
		Status:      model.PublicationStatusPublished,
		CreatedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		PublishedAt: &published,
	}
}

func TestPublicHandler_ListPublications_ParsesFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  model.PublicFilter
	}{
		{
			name:  "全項目指定",
			query: "artisanId=" + testArtisanID + "&workType=plomberie&limit=5&offset=10",
			want:  model.PublicFilter{ArtisanID: testArtisanID, WorkType: "plomberie", Limit: 5, Offset: 10},
		},
		{
			name:  "数値でないlimitとoffsetは無視",
			query: "artisanId=" + testArtisanID + "&limit=abc&offset=-x",
			want:  model.PublicFilter{ArtisanID: testArtisanID},
		},
		{
			name:  "負の値はそのままサービスへ渡す",
			query: "artisanId=" + testArtisanID + "&limit=-1&offset=-5",
			want:  model.PublicFilter{ArtisanID: testArtisanID, Limit: -1, Offset: -5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.PublicFilter
			var gotBase string
			h := NewPublicHandler(&mockPublicService{
				listPublicFn: func(_ context.Context, filter model.PublicFilter, baseURL string) (*publication.PublicPage, error) {
					got = filter
					gotBase = baseURL
					return &publication.PublicPage{Limit: 20}, nil
				},
			}, "https://api.example.com", false)

			w := httptest.NewRecorder()
			h.ListPublications(w, httptest.NewRequest(http.MethodGet, "/api/public/publications?"+tt.query, nil))

			if got != tt.want {
				t.Errorf("filter = %+v, want %+v", got, tt.want)
			}
			if gotBase != "https://api.example.com" {
				t.Errorf("baseURL = %q", gotBase)
			}
		})
	}
}

func TestPublicHandler_ListPublications_ResponseShape(t *testing.T) {
	withoutPublishedAt := publishedPublication("p2")
	withoutPublishedAt.PublishedAt = nil
	withoutPublishedAt.Tags = nil

	h := NewPublicHandler(&mockPublicService{
		listPublicFn: func(_ context.Context, _ model.PublicFilter, _ string) (*publication.PublicPage, error) {
			return &publication.PublicPage{
				Publications: []*model.Publication{publishedPublication("p1"), withoutPublishedAt},
				Total:        3,
				Limit:        2,
				Offset:       0,
				HasMore:      true,
			}, nil
		},
	}, "https://api.example.com", false)

	w := httptest.NewRecorder()
	h.ListPublications(w, httptest.NewRequest(http.MethodGet, "/api/public/publications?artisanId="+testArtisanID+"&limit=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["artisanId"] != testArtisanID {
		t.Errorf("unexpected body: %v", body)
	}

	pagination, _ := body["pagination"].(map[string]any)
	if pagination["total"] != float64(3) || pagination["limit"] != float64(2) ||
		pagination["offset"] != float64(0) || pagination["hasMore"] != true {
		t.Errorf("pagination = %v", pagination)
	}

	pubs, _ := body["publications"].([]any)
	if len(pubs) != 2 {
		t.Fatalf("publications = %v, want 2 items", body["publications"])
	}
	first := pubs[0].(map[string]any)
	if first["publishedAt"] != "2025-06-02T10:00:00Z" {
		t.Errorf("publishedAt = %v", first["publishedAt"])
	}
	if _, ok := first["userId"]; ok {
		t.Error("userId must not be exposed by the public API")
	}
	if _, ok := first["status"]; ok {
		t.Error("status must not be exposed by the public API")
	}

	second := pubs[1].(map[string]any)
	t.Run("公開日時がなければ作成日時", func(t *testing.T) {
		if second["publishedAt"] != "2025-06-01T09:00:00Z" {
			t.Errorf("publishedAt = %v, want createdAt", second["publishedAt"])
		}
	})
	t.Run("タグは空配列", func(t *testing.T) {
		if tags, ok := second["tags"].([]any); !ok || len(tags) != 0 {
			t.Errorf("tags = %v, want []", second["tags"])
		}
	})
}

func TestPublicHandler_ListPublications_InvalidArtisanID(t *testing.T) {
	h := NewPublicHandler(&mockPublicService{
		listPublicFn: func(_ context.Context, _ model.PublicFilter, _ string) (*publication.PublicPage, error) {
			return nil, model.NewInvalidArtisanIDError()
		},
	}, "https://api.example.com", false)

	w := httptest.NewRecorder()
	h.ListPublications(w, httptest.NewRequest(http.MethodGet, "/api/public/publications?artisanId=not-a-uuid", nil))

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidArtisanID)
}

func TestPublicHandler_PortfolioScript(t *testing.T) {
	h := NewPublicHandler(&mockPublicService{}, "https://api.example.com/", false)

	w := httptest.NewRecorder()
	h.PortfolioScript(w, httptest.NewRequest(http.MethodGet, "/embed/portfolio.js", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=300") {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !strings.Contains(w.Body.String(), `"https://api.example.com"`) {
		t.Error("script should embed the API base URL")
	}
}

func TestPublicHandler_PortfolioHTML(t *testing.T) {
	t.Run("カードを描画", func(t *testing.T) {
		pub := publishedPublication("p1")
		pub.Title = `<script>alert("x")</script>`
		h := NewPublicHandler(&mockPublicService{
			listPublicFn: func(_ context.Context, _ model.PublicFilter, _ string) (*publication.PublicPage, error) {
				return &publication.PublicPage{Publications: []*model.Publication{pub}, Total: 1}, nil
			},
		}, "https://api.example.com", false)

		w := httptest.NewRecorder()
		h.PortfolioHTML(w, httptest.NewRequest(http.MethodGet, "/embed/portfolio.html?artisanId="+testArtisanID, nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		out := w.Body.String()
		if strings.Contains(out, "<script>") {
			t.Errorf("title should be escaped: %s", out)
		}
		if !strings.Contains(out, "#menuiserie") {
			t.Errorf("tags should be rendered: %s", out)
		}
	})

	t.Run("サービスエラー", func(t *testing.T) {
		h := NewPublicHandler(&mockPublicService{
			listPublicFn: func(_ context.Context, _ model.PublicFilter, _ string) (*publication.PublicPage, error) {
				return nil, errors.New("db down")
			},
		}, "https://api.example.com", false)

		w := httptest.NewRecorder()
		h.PortfolioHTML(w, httptest.NewRequest(http.MethodGet, "/embed/portfolio.html?artisanId="+testArtisanID, nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}
