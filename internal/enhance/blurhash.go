package enhance

import (
	"bytes"
	"fmt"

	"github.com/bbrks/go-blurhash"
	"github.com/disintegration/imaging"
)

// blurHashSize はBlurHash計算用サムネイルの長辺。
// 低解像度のプレースホルダーなので小さな縮小画像で十分。
const blurHashSize = 64

// BlurHash は画像からBlurHash文字列を生成する。
// 4x3成分で、縮小画像から計算する。
func BlurHash(data []byte) (string, error) {
	if err := CheckDimensions(data); err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	thumbnail := imaging.Fit(img, blurHashSize, blurHashSize, imaging.Box)

	hash, err := blurhash.Encode(4, 3, thumbnail)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}
