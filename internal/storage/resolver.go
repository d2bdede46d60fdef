package storage

import (
	"context"
	"fmt"
	"strings"
)

// Fetcher は外部URLから画像を取得する。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Resolver は画像参照から内容を読み出す。
// 自ストレージの参照はStorageから、それ以外の絶対URLはFetcher経由で取得する。
type Resolver struct {
	store   Storage
	fetcher Fetcher
}

// NewResolver はResolverを生成する。fetcherがnilの場合は外部URLを扱わない。
func NewResolver(store Storage, fetcher Fetcher) *Resolver {
	return &Resolver{store: store, fetcher: fetcher}
}

// Open は参照先の画像を読み出す。
func (r *Resolver) Open(ctx context.Context, ref string) ([]byte, error) {
	if r.store.Owns(ref) {
		return r.store.Open(ctx, ref)
	}
	if r.fetcher != nil && (strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")) {
		data, err := r.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch external image: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrForeignRef, ref)
}
