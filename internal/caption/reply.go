package caption

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/arsia/internal/model"
)

// DefaultText は生成テキストが得られなかった場合のキャプション。
const DefaultText = "Description générée par IA"

// タグ数の下限と上限。
const (
	MinTags = 3
	MaxTags = 8
)

// DefaultTags は解析失敗時および不足分の補充に使うタグ。
var DefaultTags = []string{"artisan", "travaux", "réalisation"}

// Reply はモデル応答の解析結果。StructuredかFallbackのいずれか。
type Reply interface {
	isReply()
}

// Structured はJSONとして解析できた応答。
type Structured struct {
	Text    string
	Tags    []string
	RawText string // Textが空の場合の代替に使う応答全文
}

// Fallback はJSONとして解析できなかった応答。
type Fallback struct {
	RawText string
}

func (Structured) isReply() {}
func (Fallback) isReply()   {}

// Caption は正規化済みのキャプションとタグ。
type Caption struct {
	SEOText string
	Tags    []string
}

// rawReply はモデルが返すJSONの形。tagsは配列またはカンマ区切り文字列。
type rawReply struct {
	SEOText string          `json:"seoText"`
	Tags    json.RawMessage `json:"tags"`
}

// ParseReply はモデルの応答を解析する。
// 前後に説明文やコードフェンスがある場合は最初の"{"から最後の"}"までをJSONとして扱う。
func ParseReply(content string) Reply {
	candidate := content
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		candidate = content[start : end+1]
	}

	var raw rawReply
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Fallback{RawText: content}
	}
	return Structured{Text: raw.SEOText, Tags: parseTags(raw.Tags), RawText: content}
}

// parseTags は配列またはカンマ区切り文字列のタグを取り出す。
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		tags := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Split(joined, ",")
	}
	return nil
}

// Sanitizer はキャプションからマークアップを取り除く。
type Sanitizer interface {
	StripTags(text string) string
}

// Normalize は解析結果を保存可能なキャプションに正規化する。
func Normalize(reply Reply, sanitizer Sanitizer) Caption {
	switch r := reply.(type) {
	case Structured:
		text := cleanText(r.Text, sanitizer)
		if text == "" {
			text = cleanText(r.RawText, sanitizer)
		}
		if text == "" {
			text = DefaultText
		}
		return Caption{SEOText: text, Tags: NormalizeTags(r.Tags)}
	case Fallback:
		text := cleanText(r.RawText, sanitizer)
		if text == "" {
			text = DefaultText
		}
		return Caption{SEOText: text, Tags: NormalizeTags(nil)}
	default:
		return Caption{SEOText: DefaultText, Tags: NormalizeTags(nil)}
	}
}

func cleanText(text string, sanitizer Sanitizer) string {
	text = norm.NFC.String(text)
	if sanitizer != nil {
		text = sanitizer.StripTags(text)
	}
	return Truncate(strings.TrimSpace(text), model.MaxSEOTextLength)
}

var frenchLower = cases.Lower(language.French)

// NormalizeTags は前後空白と先頭の#を除き、小文字化・重複除去し、上限で切り、既定タグで下限まで補う。
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, MaxTags)
	seen := make(map[string]bool)

	add := func(tag string) {
		if len(out) >= MaxTags || tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}

	for _, tag := range tags {
		tag = strings.TrimSpace(norm.NFC.String(tag))
		tag = strings.TrimSpace(strings.TrimLeft(tag, "#"))
		add(frenchLower.String(tag))
	}
	for _, tag := range DefaultTags {
		if len(out) >= MinTags {
			break
		}
		add(tag)
	}
	return out
}

// Truncate はテキストをmaxRunes文字以内に収める。
//  1. 末尾50文字以内に文末記号(. ! ?)があればその直後で切る
//  2. なければ末尾30文字以内の空白で切って"..."を付ける
//  3. どちらもなければ強制的に切って"..."を付ける
//
// "..."を含めても常にmaxRunes以内になる。
func Truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	head := runes[:maxRunes]

	if end := lastIndexAny(head, '.', '!', '?'); end > maxRunes-50 {
		return string(head[:end+1])
	}

	const ellipsis = "..."
	room := head[:maxRunes-len(ellipsis)]
	if space := lastIndexAny(room, ' '); space > maxRunes-30 {
		return string(room[:space]) + ellipsis
	}
	return strings.TrimRight(string(room), " ") + ellipsis
}

func lastIndexAny(runes []rune, targets ...rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		for _, t := range targets {
			if runes[i] == t {
				return i
			}
		}
	}
	return -1
}
