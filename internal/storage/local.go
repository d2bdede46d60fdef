package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalURLPrefix はローカル保存画像の参照プレフィックス。ルーターがこのパスで配信する。
const LocalURLPrefix = "/uploads/"

// uploadFileMode は保存ファイルの権限。同じディレクトリを配信する別プロセスからも読める。
const uploadFileMode fs.FileMode = 0o644

// LocalStorage はディスク上のディレクトリに画像を保存する。
type LocalStorage struct {
	dir string
}

// NewLocalStorage はLocalStorageを生成し、保存先ディレクトリを作成する。
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save はファイルを書き込み、/uploads/<name> 形式の参照を返す。
// 一時ファイルへ書いてからリネームするため、読み手が書きかけのファイルを見ることはない。
func (s *LocalStorage) Save(_ context.Context, name string, data []byte, _ string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("invalid file name: %q", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	// CreateTempは0600で作るため、リネーム前に権限を広げる
	if err := tmp.Chmod(uploadFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to chmod upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move upload into place: %w", err)
	}

	return LocalURLPrefix + name, nil
}

// Open は参照先のファイル内容を返す。
func (s *LocalStorage) Open(_ context.Context, ref string) ([]byte, error) {
	name, ok := s.nameOf(ref)
	if !ok {
		return nil, ErrForeignRef
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

// Owns は参照がこのストレージの管理下にあるかを返す。
func (s *LocalStorage) Owns(ref string) bool {
	_, ok := s.nameOf(ref)
	return ok
}

// Delete は参照先のファイルを削除する。存在しない場合は成功とみなす。
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	name, ok := s.nameOf(ref)
	if !ok {
		return ErrForeignRef
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

// Handler は保存済み画像を /uploads/ 配下で配信するハンドラーを返す。
// ディレクトリ一覧は返さない。
func (s *LocalStorage) Handler() http.Handler {
	files := http.StripPrefix(LocalURLPrefix, http.FileServer(http.Dir(s.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, LocalURLPrefix)
		if !validName(name) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

func (s *LocalStorage) nameOf(ref string) (string, bool) {
	if !strings.HasPrefix(ref, LocalURLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, LocalURLPrefix)
	return name, validName(name)
}

var _ Storage = (*LocalStorage)(nil)
