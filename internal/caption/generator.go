// Package caption は現場写真からSEO向けキャプションとタグを生成する。
// OpenAI互換のチャット補完APIに画像とメタデータを送り、応答を正規化する。
package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/arsia/internal/metrics"
)

// maxCompletionTokens は応答の最大トークン数。
const maxCompletionTokens = 400

// ErrEmptyReply はモデルが選択肢を返さなかったことを示す。
var ErrEmptyReply = errors.New("caption model returned no choices")

// Metadata はキャプション生成に添える任意の情報。
type Metadata struct {
	Title    string
	Location string
	WorkType string
	Date     string
}

// Generator はキャプション生成のインターフェース。
type Generator interface {
	Generate(ctx context.Context, image []byte, contentType string, meta Metadata) (*Caption, error)
}

// Options はOpenAIGeneratorの設定。
type Options struct {
	APIKey  string
	BaseURL string // 空ならOpenAIの既定エンドポイント
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator はOpenAI互換APIでキャプションを生成する。
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
}

// NewOpenAIGenerator はOpenAIGeneratorを生成する。
func NewOpenAIGenerator(opts Options, sanitizer Sanitizer, m metrics.MetricsCollector) *OpenAIGenerator {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if m == nil {
		m = metrics.Nop{}
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		timeout:   opts.Timeout,
		sanitizer: sanitizer,
		metrics:   m,
	}
}

// Generate は画像とメタデータからキャプションを生成する。
// リモート呼び出しの失敗はエラーとして返す。応答の解析失敗はFallbackとして正規化する。
func (g *OpenAIGenerator) Generate(ctx context.Context, image []byte, contentType string, meta Metadata) (*Caption, error) {
	start := time.Now()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	// 1. 画像をdata URLにしてプロンプトと共に送信
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: maxCompletionTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: BuildPrompt(meta)},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	})
	if err != nil {
		g.metrics.RecordCaption(metrics.CaptionFailed, time.Since(start))
		return nil, fmt.Errorf("caption request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		g.metrics.RecordCaption(metrics.CaptionFailed, time.Since(start))
		return nil, ErrEmptyReply
	}

	// 2. 応答を解析して正規化
	reply := ParseReply(resp.Choices[0].Message.Content)
	outcome := metrics.CaptionStructured
	if _, ok := reply.(Fallback); ok {
		outcome = metrics.CaptionFallback
		slog.Warn("caption reply was not valid JSON, using fallback",
			slog.String("model", g.model),
		)
	}
	g.metrics.RecordCaption(outcome, time.Since(start))

	c := Normalize(reply, g.sanitizer)
	return &c, nil
}

// BuildPrompt はモデルに送るフランス語の指示文を組み立てる。
func BuildPrompt(meta Metadata) string {
	var b strings.Builder
	b.WriteString(`Analyse cette photo d'un travail d'artisan.
Rédige un texte optimisé SEO en français, court et percutant (50-80 mots, maximum 500 caractères), adapté aux formats LinkedIn et Instagram.
Le texte doit être :
- Concis et accrocheur pour les réseaux sociaux
- Optimisé SEO pour le web
- Adapté aux légendes Instagram (idéalement 300-500 caractères)
- Adapté aux posts LinkedIn (idéalement 300-500 caractères)
- Engageant avec un appel à l'action si possible

Identifie le type de travaux, les matériaux utilisés, le style, le contexte de manière concise.
`)
	if meta.Title != "" {
		fmt.Fprintf(&b, "Le titre du chantier est : %s.\n", meta.Title)
	}
	if meta.Location != "" {
		fmt.Fprintf(&b, "La ville/location est : %s.\n", meta.Location)
	}
	if meta.WorkType != "" {
		fmt.Fprintf(&b, "Le type de travaux est : %s.\n", meta.WorkType)
	}
	if meta.Date != "" {
		fmt.Fprintf(&b, "La date est : %s.\n", meta.Date)
	}
	b.WriteString(`Génère également 3-8 mots-clés SEO pertinents.

Format de réponse attendu (JSON) :
{
  "seoText": "texte court et percutant de 50-80 mots (max 500 caractères), adapté LinkedIn/Instagram",
  "tags": ["mot-clé1", "mot-clé2", "mot-clé3"]
}`)
	return b.String()
}

var _ Generator = (*OpenAIGenerator)(nil)
