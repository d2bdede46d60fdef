package caption

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hitoshi/arsia/internal/security"
)

func TestParseReply_Structured(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantText string
		wantTags []string
	}{
		{
			name:     "JSONのみ",
			content:  `{"seoText":"Belle cuisine.","tags":["cuisine","bois"]}`,
			wantText: "Belle cuisine.",
			wantTags: []string{"cuisine", "bois"},
		},
		{
			name:     "コードフェンス付き",
			content:  "Voici:\n```json\n{\"seoText\":\"Terrasse.\",\"tags\":[\"terrasse\"]}\n```",
			wantText: "Terrasse.",
			wantTags: []string{"terrasse"},
		},
		{
			name:     "カンマ区切りのタグ",
			content:  `{"seoText":"Toit.","tags":"toiture, zinc ,couverture"}`,
			wantText: "Toit.",
			wantTags: []string{"toiture", " zinc ", "couverture"},
		},
		{
			name:     "文字列以外のタグは無視",
			content:  `{"seoText":"Mur.","tags":["mur", 3, null, "enduit"]}`,
			wantText: "Mur.",
			wantTags: []string{"mur", "enduit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := ParseReply(tt.content).(Structured)
			if !ok {
				t.Fatalf("expected Structured, got %T", ParseReply(tt.content))
			}
			if s.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", s.Text, tt.wantText)
			}
			if !reflect.DeepEqual(s.Tags, tt.wantTags) {
				t.Errorf("Tags = %q, want %q", s.Tags, tt.wantTags)
			}
		})
	}
}

func TestParseReply_Fallback(t *testing.T) {
	for _, content := range []string{"Un beau chantier de maçonnerie.", "{not json}", ""} {
		if _, ok := ParseReply(content).(Fallback); !ok {
			t.Errorf("ParseReply(%q) = %T, want Fallback", content, ParseReply(content))
		}
	}
}

func TestNormalize_Fallback_UsesRawTextAndDefaultTags(t *testing.T) {
	c := Normalize(Fallback{RawText: "  Un beau <b>chantier</b>.  "}, security.NewTextSanitizer())

	if c.SEOText != "Un beau chantier." {
		t.Errorf("SEOText = %q", c.SEOText)
	}
	if !reflect.DeepEqual(c.Tags, DefaultTags) {
		t.Errorf("Tags = %q, want %q", c.Tags, DefaultTags)
	}
}

func TestNormalize_EmptyTextFallsBack(t *testing.T) {
	c := Normalize(Fallback{RawText: "   "}, nil)
	if c.SEOText != DefaultText {
		t.Errorf("SEOText = %q, want %q", c.SEOText, DefaultText)
	}

	s := Normalize(Structured{Text: "", Tags: []string{"a"}, RawText: "texte brut"}, nil)
	if s.SEOText != "texte brut" {
		t.Errorf("SEOText = %q, want raw text", s.SEOText)
	}
}

func TestNormalize_NFC(t *testing.T) {
	// "é" を e + 結合アクセントで与える
	c := Normalize(Structured{Text: "Re\u0301novation", Tags: nil}, nil)
	if c.SEOText != "R\u00e9novation" {
		t.Errorf("SEOText = %q, want NFC form", c.SEOText)
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"空は既定タグ", nil, []string{"artisan", "travaux", "réalisation"}},
		{"整形と重複除去", []string{" #Cuisine ", "cuisine", "##BOIS", ""}, []string{"cuisine", "bois", "artisan"}},
		{"既定タグとの重複は補充しない", []string{"Artisan"}, []string{"artisan", "travaux", "réalisation"}},
		{"フランス語の小文字化", []string{"ÉLECTRICITÉ", "Plâtrerie", "Maçon"}, []string{"électricité", "plâtrerie", "maçon"}},
		{"上限8件", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Run("短いテキストはそのまま", func(t *testing.T) {
		if got := Truncate("Court.", 500); got != "Court." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("末尾50文字以内の文末で切る", func(t *testing.T) {
		text := strings.Repeat("a", 470) + "." + strings.Repeat("b", 100)
		got := Truncate(text, 500)
		if got != strings.Repeat("a", 470)+"." {
			t.Errorf("len=%d, got suffix %q", utf8.RuneCountInString(got), got[len(got)-5:])
		}
	})

	t.Run("文末が遠ければ空白で切って省略記号", func(t *testing.T) {
		text := "Début. " + strings.Repeat("x", 480) + " " + strings.Repeat("y", 100)
		got := Truncate(text, 500)
		if !strings.HasSuffix(got, strings.Repeat("x", 10)+"...") {
			t.Errorf("got suffix %q", got[len(got)-15:])
		}
		if n := utf8.RuneCountInString(got); n > 500 {
			t.Errorf("len = %d, want <= 500", n)
		}
	})

	t.Run("区切りがなければ強制的に切る", func(t *testing.T) {
		got := Truncate(strings.Repeat("é", 600), 500)
		if n := utf8.RuneCountInString(got); n != 500 {
			t.Errorf("len = %d, want 500", n)
		}
		if !strings.HasSuffix(got, "é...") {
			t.Errorf("got suffix %q", got[len(got)-6:])
		}
	})

	t.Run("結果は常に上限以内", func(t *testing.T) {
		inputs := []string{
			strings.Repeat("mot ", 200),
			strings.Repeat("Phrase courte. ", 60),
			strings.Repeat("😀", 501),
		}
		for _, in := range inputs {
			if n := utf8.RuneCountInString(Truncate(in, 500)); n > 500 {
				t.Errorf("len = %d, want <= 500", n)
			}
		}
	})
}
