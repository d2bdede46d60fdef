package upload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/hitoshi/arsia/internal/model"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// hugePNG は寸法だけが巨大なPNG（IHDRまで）を返す。圧縮後のバイト数は数十バイト。
func hugePNG(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

type part struct {
	field    string
	filename string // 空ならテキスト項目
	data     []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" {
			mw.WriteField(p.field, string(p.data))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(p.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/publications", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func TestParseRequest_Success(t *testing.T) {
	req := multipartRequest(t,
		part{field: "title", data: []byte("Rénovation cuisine")},
		part{field: "location", data: []byte("Lyon")},
		part{field: FieldName, filename: "Chantier.PNG", data: pngBytes(t)},
	)

	up, err := ParseRequest(httptest.NewRecorder(), req, DefaultMaxSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.Image.ContentType != "image/png" || up.Image.Ext != ".png" {
		t.Errorf("image = %s %s, want image/png .png", up.Image.ContentType, up.Image.Ext)
	}
	if up.Fields.Get("title") != "Rénovation cuisine" || up.Fields.Get("location") != "Lyon" {
		t.Errorf("fields = %v", up.Fields)
	}
}

func TestParseRequest_Rejections(t *testing.T) {
	img := pngBytes(t)
	tests := []struct {
		name  string
		parts []part
		code  string
	}{
		{"画像なし", []part{{field: "title", data: []byte("x")}}, model.ErrCodeInvalidUpload},
		{"画像2枚", []part{{field: FieldName, filename: "a.png", data: img}, {field: FieldName, filename: "b.png", data: img}}, model.ErrCodeInvalidUpload},
		{"別名のファイル項目", []part{{field: FieldName, filename: "a.png", data: img}, {field: "other", filename: "b.png", data: img}}, model.ErrCodeInvalidUpload},
		{"許可外の拡張子", []part{{field: FieldName, filename: "a.svg", data: img}}, model.ErrCodeInvalidUpload},
		{"画像でない内容", []part{{field: FieldName, filename: "a.jpg", data: []byte("#!/bin/sh\necho pwned\n")}}, model.ErrCodeInvalidUpload},
		{"画素数が上限超過", []part{{field: FieldName, filename: "bomb.png", data: hugePNG(12000, 12000)}}, model.ErrCodeInvalidUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(httptest.NewRecorder(), multipartRequest(t, tt.parts...), DefaultMaxSize)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestParseRequest_TooLarge(t *testing.T) {
	big := append(pngBytes(t), make([]byte, 2048)...)
	req := multipartRequest(t, part{field: FieldName, filename: "a.png", data: big})

	_, err := ParseRequest(httptest.NewRecorder(), req, 1024)
	assertAPIErrorCode(t, err, model.ErrCodeFileTooLarge)
}

func TestValidate_ExtensionCaseAndCanonicalExt(t *testing.T) {
	img, err := Validate("photo.JPEG", pngBytes(t), DefaultMaxSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 保存拡張子は内容から決まる
	if img.Ext != ".png" {
		t.Errorf("Ext = %q, want %q", img.Ext, ".png")
	}
}

func TestValidate_PixelLimit(t *testing.T) {
	data := hugePNG(12000, 12000)
	if int64(len(data)) > 1024 {
		t.Fatalf("fixture should be tiny, got %d bytes", len(data))
	}

	_, err := Validate("bomb.png", data, DefaultMaxSize)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidUpload)

	if _, err := Validate("ok.png", hugePNG(8000, 5000), DefaultMaxSize); err != nil {
		t.Errorf("40MP image should be accepted, got %v", err)
	}
}

func TestValidate_TruncatedImage(t *testing.T) {
	// PNGシグネチャだけでヘッダーが読めない
	_, err := Validate("a.png", []byte("\x89PNG\r\n\x1a\n"), DefaultMaxSize)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidUpload)
}

func TestValidate_Empty(t *testing.T) {
	_, err := Validate("a.png", nil, DefaultMaxSize)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidUpload)
}

func TestGenerateName_FormatAndUniqueness(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^publication-1700000000123-[0-9a-z]{12}\.jpg$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name, err := GenerateName(".jpg", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !pattern.MatchString(name) {
			t.Errorf("name = %q does not match %s", name, pattern)
		}
		if seen[name] {
			t.Errorf("duplicate name %q", name)
		}
		seen[name] = true
	}
}
