// Package enhance は現場写真の自動補正とBlurHashプレースホルダー生成を行う。
package enhance

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/hitoshi/arsia/internal/metrics"
)

// 補正パラメータ。
const (
	brightnessFactor = 1.10 // 明るさ +10%
	saturationPct    = 15   // 彩度 +15%
	contrastSlope    = 1.1  // 線形コントラスト a*v + b
	contrastOffset   = -12.8
	sharpenSigma     = 1.5
	jpegQuality      = 90
)

// MaxPixels は復号を許す画素数の上限（40メガピクセル）。バイト数ではなくヘッダーの寸法で判定する。
const MaxPixels int64 = 40_000_000

// ErrImageTooLarge は画素数がMaxPixelsを超える画像に返す。
var ErrImageTooLarge = errors.New("image dimensions exceed pixel limit")

// warmTint は暖色寄りの色味（乗算）。
var warmTint = [3]float64{255.0 / 255.0, 252.0 / 255.0, 240.0 / 255.0}

// Result は補正の結果。失敗時もDataには元の画像が入る。
type Result struct {
	Data        []byte
	ContentType string
	Outcome     string // metrics.EnhanceApplied / EnhancePassthrough / EnhanceFailed
}

// Enhancer は画像補正を行う。
type Enhancer struct {
	metrics metrics.MetricsCollector
}

// NewEnhancer はEnhancerを生成する。
func NewEnhancer(m metrics.MetricsCollector) *Enhancer {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Enhancer{metrics: m}
}

// Enhance は明るさ・彩度・コントラスト・シャープネス・色味を補正し、元と同じ形式で再エンコードする。
// WebPは純Goでエンコードできないため元のバイト列を返す。
// 補正はベストエフォートで、失敗しても元のバイト列を返しエラーにはしない。
func (e *Enhancer) Enhance(data []byte, contentType string) Result {
	if contentType == "image/webp" {
		e.metrics.RecordEnhancement(metrics.EnhancePassthrough)
		return Result{Data: data, ContentType: contentType, Outcome: metrics.EnhancePassthrough}
	}

	out, err := enhance(data, contentType)
	if err != nil {
		slog.Warn("image enhancement failed, keeping original",
			slog.String("content_type", contentType),
			slog.String("error", err.Error()),
		)
		e.metrics.RecordEnhancement(metrics.EnhanceFailed)
		return Result{Data: data, ContentType: contentType, Outcome: metrics.EnhanceFailed}
	}

	e.metrics.RecordEnhancement(metrics.EnhanceApplied)
	return Result{Data: out, ContentType: contentType, Outcome: metrics.EnhanceApplied}
}

func enhance(data []byte, contentType string) ([]byte, error) {
	format, opts, err := encodeFormat(contentType)
	if err != nil {
		return nil, err
	}

	if err := CheckDimensions(data); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var dst image.Image = imaging.AdjustFunc(img, scaleChannels(brightnessFactor, brightnessFactor, brightnessFactor, 0))
	dst = imaging.AdjustSaturation(dst, saturationPct)
	dst = imaging.AdjustFunc(dst, scaleChannels(contrastSlope, contrastSlope, contrastSlope, contrastOffset))
	dst = imaging.Sharpen(dst, sharpenSigma)
	dst = imaging.AdjustFunc(dst, scaleChannels(warmTint[0], warmTint[1], warmTint[2], 0))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format, opts...); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// CheckDimensions はヘッダーだけを読み、画素数がMaxPixels以下であることを確認する。
func CheckDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// encodeFormat はContent-Typeに対応する再エンコード形式を返す。
func encodeFormat(contentType string) (imaging.Format, []imaging.EncodeOption, error) {
	switch contentType {
	case "image/jpeg":
		return imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(jpegQuality)}, nil
	case "image/png":
		return imaging.PNG, []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)}, nil
	case "image/gif":
		return imaging.GIF, nil, nil
	default:
		return 0, nil, fmt.Errorf("unsupported content type for re-encoding: %s", contentType)
	}
}

// scaleChannels はRGB各チャネルに v*k + offset を適用し、0..255に丸める関数を返す。
func scaleChannels(kr, kg, kb, offset float64) func(color.NRGBA) color.NRGBA {
	return func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(float64(c.R)*kr + offset),
			G: clamp(float64(c.G)*kg + offset),
			B: clamp(float64(c.B)*kb + offset),
			A: c.A,
		}
	}
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
