// Package storage は投稿画像の保存先を抽象化する。
// ローカルディスク（既定）とS3互換オブジェクトストレージを提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hitoshi/arsia/internal/config"
)

// ErrNotFound は参照先の画像が存在しないことを示す。
var ErrNotFound = errors.New("stored object not found")

// ErrForeignRef は参照がこのストレージの管理外であることを示す。
var ErrForeignRef = errors.New("reference not owned by this storage")

// Storage は画像の保存・読み出し・削除を行う。
// 参照(ref)は公開URLまたはルート相対パスで、Publication.ImageURLにそのまま格納される。
type Storage interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, ref string) ([]byte, error)
	Owns(ref string) bool
	Delete(ctx context.Context, ref string) error
}

// New は設定に応じたStorageを生成する。
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return NewLocalStorage(cfg.UploadDir)
	case "s3":
		return NewS3Storage(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// validName はファイル名がパス区切りや相対指定を含まない単一要素であるかを返す。
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && path.Base(name) == name
}
