// Package embed は外部のポートフォリオサイトに埋め込むスクリプトとHTML断片を提供する。
package embed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hitoshi/arsia/internal/model"
)

//go:embed portfolio.js
var scriptTemplate string

// ContainerID は埋め込み先ページでグリッドを描画する要素のID。
const ContainerID = "iartisan-portfolio"

// 各要素のインラインスタイル。スクリプト版と同じ見た目にする。
const (
	gridStyle     = "display: grid; grid-template-columns: repeat(auto-fill, minmax(300px, 1fr)); gap: 20px; padding: 20px;"
	cardStyle     = "border: 1px solid #e5e7eb; border-radius: 8px; overflow: hidden; background: white; box-shadow: 0 1px 3px rgba(0,0,0,0.1);"
	imageStyle    = "width: 100%; height: 200px; object-fit: cover;"
	bodyStyle     = "padding: 16px;"
	titleStyle    = "margin: 0 0 8px 0; font-size: 1.25rem; font-weight: 600;"
	locationStyle = "margin: 0 0 8px 0; color: #6b7280; font-size: 0.875rem;"
	textStyle     = "margin: 0 0 12px 0; color: #374151; line-height: 1.5;"
	tagsStyle     = "display: flex; flex-wrap: wrap; gap: 4px; margin-top: 12px;"
	tagStyle      = "background: #f3f4f6; padding: 4px 8px; border-radius: 4px; font-size: 0.75rem; color: #4b5563;"
	emptyStyle    = "text-align: center; color: #6b7280; padding: 20px;"
)

// Script はAPIのベースURLを埋め込んだポートフォリオスクリプトを返す。
// URLはJSONの文字列リテラルとして埋め込む。
func Script(apiURL string) ([]byte, error) {
	literal, err := json.Marshal(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to encode api url: %w", err)
	}
	return []byte(strings.Replace(scriptTemplate, "__API_URL__", string(literal), 1)), nil
}

// RenderPortfolio は公開済み投稿のカードグリッドをHTML断片として書き出す。
// テキストと属性値はhtml.Renderでエスケープされる。
func RenderPortfolio(w io.Writer, pubs []*model.Publication) error {
	root := element(atom.Div, "", "id", ContainerID)

	if len(pubs) == 0 {
		root.AppendChild(textElement(atom.P, emptyStyle, "Aucune publication disponible."))
		return html.Render(w, root)
	}

	grid := element(atom.Div, gridStyle, "class", "iartisan-portfolio-container")
	for _, p := range pubs {
		grid.AppendChild(card(p))
	}
	root.AppendChild(grid)
	return html.Render(w, root)
}

func card(p *model.Publication) *html.Node {
	c := element(atom.Div, cardStyle, "class", "iartisan-card")
	c.AppendChild(element(atom.Img, imageStyle,
		"src", p.ImageURL,
		"alt", p.Title,
		"loading", "lazy",
	))

	body := element(atom.Div, bodyStyle)
	body.AppendChild(textElement(atom.H3, titleStyle, p.Title))
	if p.Location != "" {
		body.AppendChild(textElement(atom.P, locationStyle, "📍 "+p.Location))
	}
	body.AppendChild(textElement(atom.P, textStyle, p.SEOText))

	if len(p.Tags) > 0 {
		tags := element(atom.Div, tagsStyle)
		for _, tag := range p.Tags {
			tags.AppendChild(textElement(atom.Span, tagStyle, "#"+tag))
		}
		body.AppendChild(tags)
	}

	c.AppendChild(body)
	return c
}

// element は要素ノードを生成する。attrsは名前と値の組を交互に並べる。
func element(a atom.Atom, style string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	if style != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: style})
	}
	return n
}

func textElement(a atom.Atom, style, text string) *html.Node {
	n := element(a, style)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}
