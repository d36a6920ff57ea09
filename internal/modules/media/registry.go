// Package media stores uploaded images and documents with a JSON sidecar
// per file and keeps content references to them consistent.
package media

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

const (
	// UploadsDir is the uploads root below the data dir.
	UploadsDir = "uploads"
	// URLPrefix is where uploads are served publicly.
	URLPrefix = "/content/uploads/"
	// SidecarSuffix is appended to a file name for its metadata.
	SidecarSuffix = ".metadata.json"

	DefaultMaxBytes int64 = 20 << 20
)

var extensions = map[models.MediaKind]map[string]bool{
	models.MediaImage: {
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".webp": true, ".avif": true, ".svg": true,
	},
	models.MediaDocument: {
		".pdf": true, ".txt": true, ".md": true, ".csv": true, ".zip": true,
		".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".ppt": true, ".pptx": true, ".odt": true,
	},
}

// KindFor infers the media kind from a file extension.
func KindFor(filename string) (models.MediaKind, bool) {
	ext := strings.ToLower(path.Ext(filename))
	for kind, exts := range extensions {
		if exts[ext] {
			return kind, true
		}
	}
	return "", false
}

var (
	UploadedAction = hooks.NewAction[*models.MediaAsset]("mediaUploaded")
	DeletedAction  = hooks.NewAction[*models.MediaAsset]("mediaDeleted")
)

// ContentWriter re-saves content items whose media references changed.
type ContentWriter interface {
	Update(ctx context.Context, kind models.Kind, id string, in content.Input, opts content.WriteOptions) (*models.ContentItem, error)
}

// ContentSource lists every content item.
type ContentSource interface {
	All() ([]*models.ContentItem, error)
}

// Options tunes a Registry.
type Options struct {
	MaxBytes int64
	Now      func() time.Time
}

// Registry owns the uploads directory.
type Registry struct {
	root     string
	blobs    BlobStore
	index    ContentSource
	writer   ContentWriter
	bus      *hooks.Bus
	logger   *zap.Logger
	maxBytes int64
	now      func() time.Time

	mu sync.Mutex
}

// NewRegistry keeps sidecars under <dataDir>/uploads; blobs go to blobs.
func NewRegistry(dataDir string, blobs BlobStore, index ContentSource, writer ContentWriter, bus *hooks.Bus, logger *zap.Logger, opts Options) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	root := filepath.Join(dataDir, UploadsDir)
	if blobs == nil {
		blobs = NewLocalStore(root)
	}
	return &Registry{
		root:     root,
		blobs:    blobs,
		index:    index,
		writer:   writer,
		bus:      bus,
		logger:   logger.Named("Media"),
		maxBytes: opts.MaxBytes,
		now:      opts.Now,
	}
}

// Root is the uploads directory.
func (r *Registry) Root() string { return r.root }

func (r *Registry) sidecar(kind models.MediaKind, filename string) string {
	return filepath.Join(r.root, kind.Dir(), filename+SidecarSuffix)
}

func key(kind models.MediaKind, filename string) string { return kind.Dir() + "/" + filename }

// URLFor is the public URL of an uploaded file.
func URLFor(kind models.MediaKind, filename string) string { return URLPrefix + key(kind, filename) }

// Upload stores r under a unique name derived from filename. An empty kind
// is inferred from the extension.
func (r *Registry) Upload(ctx context.Context, src io.Reader, filename string, kind models.MediaKind) (*models.MediaAsset, error) {
	ext := strings.ToLower(path.Ext(filename))
	if kind == "" {
		k, ok := KindFor(filename)
		if !ok {
			return nil, apperr.Validation("unsupported file type", map[string]string{"file": "extension " + ext + " is not allowed"})
		}
		kind = k
	}
	if !kind.Valid() {
		return nil, apperr.Validation("invalid media type", map[string]string{"type": "must be image or document"})
	}
	if !extensions[kind][ext] {
		return nil, apperr.Validation("unsupported file type", map[string]string{"file": "extension " + ext + " is not allowed for " + string(kind)})
	}

	data, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, apperr.Internal("read upload", err)
	}
	switch {
	case len(data) == 0:
		return nil, apperr.Validation("empty file", map[string]string{"file": "file is empty"})
	case int64(len(data)) > r.maxBytes:
		return nil, apperr.Validation("file too large", map[string]string{"file": "exceeds " + strconv.FormatInt(r.maxBytes>>20, 10) + " MB"})
	}

	asset := &models.MediaAsset{
		ID:        uuid.NewString(),
		Kind:      kind,
		Size:      int64(len(data)),
		MimeType:  mimeType(ext, data),
		CreatedAt: r.now().UTC(),
	}
	if kind == models.MediaImage {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			asset.Width, asset.Height = cfg.Width, cfg.Height
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	name, err := r.allocate(ctx, kind, filename)
	if err != nil {
		return nil, err
	}
	asset.Filename = name
	asset.URL = URLFor(kind, name)
	if err := r.blobs.Put(ctx, key(kind, name), bytes.NewReader(data), asset.Size, asset.MimeType); err != nil {
		return nil, apperr.Internal("store media", err)
	}
	if err := fsutil.WriteJSON(r.sidecar(kind, name), asset); err != nil {
		_ = r.blobs.Delete(ctx, key(kind, name))
		return nil, apperr.Internal("write media metadata", err)
	}
	r.logger.Info("media uploaded", zap.String("file", asset.URL), zap.Int64("size", asset.Size))
	if r.bus != nil {
		hooks.DoAction(r.bus, UploadedAction, asset)
	}
	return asset, nil
}

func mimeType(ext string, data []byte) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// allocate picks name.ext, name-2.ext, ... Caller holds mu.
func (r *Registry) allocate(ctx context.Context, kind models.MediaKind, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	base := slug.Make(strings.TrimSuffix(path.Base(strings.ReplaceAll(filename, "\\", "/")), path.Ext(filename)))
	if base == "" {
		base = "file"
	}
	for n := 1; ; n++ {
		name := base + ext
		if n > 1 {
			name = base + "-" + strconv.Itoa(n) + ext
		}
		if fsutil.Exists(r.sidecar(kind, name)) {
			continue
		}
		taken, err := r.blobs.Exists(ctx, key(kind, name))
		if err != nil {
			return "", apperr.Internal("check media name", err)
		}
		if !taken {
			return name, nil
		}
	}
}

// List returns assets of kind, newest first. An empty kind lists both.
func (r *Registry) List(kind models.MediaKind) ([]*models.MediaAsset, error) {
	kinds := []models.MediaKind{models.MediaImage, models.MediaDocument}
	if kind != "" {
		if !kind.Valid() {
			return nil, apperr.Validation("invalid media type", map[string]string{"type": "must be image or document"})
		}
		kinds = []models.MediaKind{kind}
	}
	var out []*models.MediaAsset
	for _, k := range kinds {
		assets, err := r.scan(k)
		if err != nil {
			return nil, err
		}
		out = append(out, assets...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

func (r *Registry) scan(kind models.MediaKind) ([]*models.MediaAsset, error) {
	dir := filepath.Join(r.root, kind.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal("list media", err)
	}
	out := make([]*models.MediaAsset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SidecarSuffix) {
			continue
		}
		var a models.MediaAsset
		if err := fsutil.ReadJSON(filepath.Join(dir, e.Name()), &a); err != nil {
			r.logger.Warn("skipping unreadable media metadata", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// Get returns the asset with id.
func (r *Registry) Get(id string) (*models.MediaAsset, error) {
	assets, err := r.List("")
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, apperr.NotFound("media %s not found", id)
}

// Open streams the bytes of asset id.
func (r *Registry) Open(ctx context.Context, id string) (io.ReadCloser, *models.MediaAsset, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := r.blobs.Open(ctx, key(a.Kind, a.Filename))
	if err != nil {
		return nil, nil, err
	}
	return rc, a, nil
}

// OpenUpload streams a file by its path below the uploads root. Sidecars
// are not served.
func (r *Registry) OpenUpload(ctx context.Context, rel string) (io.ReadCloser, error) {
	if strings.HasSuffix(rel, SidecarSuffix) {
		return nil, apperr.NotFound("media %s not found", rel)
	}
	return r.blobs.Open(ctx, rel)
}

// MetaPatch edits alt and caption.
type MetaPatch struct {
	Alt     *string `json:"alt"`
	Caption *string `json:"caption"`
}

// Update changes alt or caption. With propagate, markdown embeds of the
// asset are rewritten to the new text.
func (r *Registry) Update(ctx context.Context, id string, p MetaPatch, propagate bool) (*models.MediaAsset, error) {
	r.mu.Lock()
	a, err := r.Get(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if p.Alt != nil {
		a.Alt = strings.TrimSpace(*p.Alt)
	}
	if p.Caption != nil {
		a.Caption = strings.TrimSpace(*p.Caption)
	}
	err = fsutil.WriteJSON(r.sidecar(a.Kind, a.Filename), a)
	r.mu.Unlock()
	if err != nil {
		return nil, apperr.Internal("write media metadata", err)
	}
	if propagate {
		if _, err := r.propagate(ctx, a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// PropagateMetadata rewrites every embed of asset id with its current alt
// and caption and reports how many items changed.
func (r *Registry) PropagateMetadata(ctx context.Context, id string) (int, error) {
	a, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return r.propagate(ctx, a)
}

// Delete removes the asset. With clean, references are stripped from
// content first.
func (r *Registry) Delete(ctx context.Context, id string, clean bool) (*Usage, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	var usage *Usage
	if clean {
		if usage, err = r.strip(ctx, a); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.blobs.Delete(ctx, key(a.Kind, a.Filename)); err != nil {
		return nil, apperr.Internal("delete media", err)
	}
	if err := os.Remove(r.sidecar(a.Kind, a.Filename)); err != nil && !fsutil.IsNotExist(err) {
		return nil, apperr.Internal("delete media metadata", err)
	}
	r.logger.Info("media deleted", zap.String("file", a.URL), zap.Bool("clean", clean))
	if r.bus != nil {
		hooks.DoAction(r.bus, DeletedAction, a)
	}
	return usage, nil
}
