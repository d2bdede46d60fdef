// Package upload は投稿画像のマルチパート受信と検証、保存名の生成を行う。
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hitoshi/arsia/internal/enhance"
	"github.com/hitoshi/arsia/internal/model"
)

// FieldName は画像ファイルを受け取るマルチパートフィールド名。
const FieldName = "image"

// DefaultMaxSize はアップロードサイズの既定上限（10 MiB）。
const DefaultMaxSize int64 = 10 << 20

// multipartOverhead はファイル本体以外のマルチパート要素に許容するバイト数。
const multipartOverhead int64 = 1 << 20

// allowedExtensions は拡張子ごとの許可Content-Type。
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// canonicalExtensions は検出したContent-Typeから保存時の拡張子を決める。
var canonicalExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Image は検証済みのアップロード画像。
type Image struct {
	OriginalName string
	ContentType  string // 内容から検出したContent-Type
	Ext          string // 保存用の拡張子（ドット付き）
	Data         []byte
}

// Upload はマルチパートリクエストから取り出した画像とテキスト項目。
type Upload struct {
	Image  *Image
	Fields url.Values
}

// ParseRequest はマルチパートリクエストを読み、画像1枚とテキスト項目を返す。
// 画像フィールドが0個または複数、画像以外のファイル、サイズ超過、許可外の形式はAPIErrorを返す。
func ParseRequest(w http.ResponseWriter, r *http.Request, maxSize int64) (*Upload, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	// 1. リクエスト全体のサイズを制限してからパース
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewFileTooLargeError(maxSize)
		}
		return nil, model.NewInvalidUploadError("Requête multipart invalide")
	}
	defer r.MultipartForm.RemoveAll()

	// 2. ファイルフィールドは"image"の1つだけ
	for name, headers := range r.MultipartForm.File {
		if name != FieldName {
			return nil, model.NewInvalidUploadError(fmt.Sprintf("Champ de fichier inattendu: %s", name))
		}
		if len(headers) != 1 {
			return nil, model.NewInvalidUploadError("Une seule image est autorisée")
		}
	}
	headers := r.MultipartForm.File[FieldName]
	if len(headers) == 0 {
		return nil, model.NewInvalidUploadError("Aucune image fournie")
	}
	header := headers[0]
	if header.Size > maxSize {
		return nil, model.NewFileTooLargeError(maxSize)
	}

	// 3. 読み込んで内容を検証
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	img, err := Validate(header.Filename, data, maxSize)
	if err != nil {
		return nil, err
	}

	return &Upload{Image: img, Fields: url.Values(r.MultipartForm.Value)}, nil
}

// Validate はファイル名の拡張子と内容の両方で形式を検証し、画素数の上限も確認する。
func Validate(filename string, data []byte, maxSize int64) (*Image, error) {
	if int64(len(data)) > maxSize {
		return nil, model.NewFileTooLargeError(maxSize)
	}
	if len(data) == 0 {
		return nil, model.NewInvalidUploadError("Fichier vide")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, model.NewInvalidUploadError("Seules les images (jpeg, jpg, png, gif, webp) sont autorisées")
	}

	sniffed := http.DetectContentType(data)
	canonical, ok := canonicalExtensions[sniffed]
	if !ok {
		return nil, model.NewInvalidUploadError("Seules les images (jpeg, jpg, png, gif, webp) sont autorisées")
	}

	// 展開後のサイズはヘッダーの寸法で判定する
	if err := enhance.CheckDimensions(data); err != nil {
		if errors.Is(err, enhance.ErrImageTooLarge) {
			return nil, model.NewInvalidUploadError(
				fmt.Sprintf("Image trop grande (%d mégapixels maximum)", enhance.MaxPixels/1_000_000))
		}
		return nil, model.NewInvalidUploadError("Image illisible")
	}

	return &Image{
		OriginalName: filename,
		ContentType:  sniffed,
		Ext:          canonical,
		Data:         data,
	}, nil
}

// GenerateName は publication-<unixmillis>-<nanoid><ext> 形式の保存名を生成する。
// ランダム部分によりロックなしで衝突を避ける。
func GenerateName(ext string, now time.Time) (string, error) {
	id, err := gonanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 12)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return fmt.Sprintf("publication-%d-%s%s", now.UnixMilli(), id, ext), nil
}
