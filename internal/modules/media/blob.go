package media

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// BlobStore holds media bytes. Keys are slash separated paths below the
// uploads root, e.g. "images/cat.png".
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey rejects keys that escape the uploads root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." || strings.HasPrefix(k, "../") {
		return "", apperr.NotFound("media %s not found", key)
	}
	return k, nil
}

// LocalStore keeps blobs on disk.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore { return &LocalStore{root: root} }

func (s *LocalStore) path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.root, filepath.FromSlash(k))
	if !fsutil.Within(s.root, p) {
		return "", apperr.NotFound("media %s not found", key)
	}
	return p, nil
}

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return fsutil.WriteStream(p, r)
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if fsutil.IsDir(p) {
		return nil, apperr.NotFound("media %s not found", key)
	}
	f, err := os.Open(p)
	if fsutil.IsNotExist(err) {
		return nil, apperr.NotFound("media %s not found", key)
	}
	return f, err
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !fsutil.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	return fsutil.Exists(p), nil
}
