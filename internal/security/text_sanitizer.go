package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者入力やAIが生成したテキストからマークアップを取り除き、プレーンテキストにする。
// 保存値はプレーンテキストとして扱い、出力側（JSON、埋め込みHTML）で必ずエスケープする。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// StripTags はタグを除去し、bluemondayがエスケープした実体参照を元の文字に戻して前後の空白を除く。
func (s *TextSanitizer) StripTags(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}
