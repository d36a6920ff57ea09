// Package static writes the whole public site to a directory of plain files.
// Every page goes through the same Renderer that serves live requests.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/content"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/modules/render"
	"github.com/folio-cms/folio/internal/modules/theme"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
)

// Export states.
const (
	StateIdle       = "idle"
	StateGenerating = "generating"
	StateReady      = "ready"
	StateFailed     = "failed"
)

// UploadsPrefix is the public URL prefix of media files.
const UploadsPrefix = "/content/uploads/"

// SettingsSource supplies the current site settings.
type SettingsSource interface {
	Get() (models.Settings, error)
}

// MediaSource opens an uploaded file by its path below the uploads root,
// e.g. "images/cat.png".
type MediaSource interface {
	OpenUpload(ctx context.Context, rel string) (io.ReadCloser, error)
}

// Artifact is an extra file written at the output root, such as feed.xml.
type Artifact struct {
	Path  string
	Build func() ([]byte, error)
}

// ExportSettings is the part of the site settings an export used.
type ExportSettings struct {
	OutputDir         string `json:"outputDir"`
	CleanURLs         bool   `json:"cleanUrls"`
	BaseURL           string `json:"baseUrl"`
	IncludeTaxonomies bool   `json:"includeTaxonomies"`
	MinifyAssets      bool   `json:"minifyAssets"`
}

// Status describes the last or current export.
type Status struct {
	Status        string         `json:"status"`
	LastGenerated *time.Time     `json:"lastGenerated,omitempty"`
	Pages         int            `json:"pages"`
	Error         string         `json:"error,omitempty"`
	Settings      ExportSettings `json:"settings"`
}

// Result is published after every finished export.
type Result struct {
	OutputDir string
	Pages     int
	Duration  time.Duration
	Err       error
}

// GeneratedAction fires after an export finished, successfully or not.
var GeneratedAction = hooks.NewAction[Result]("staticGenerated")

// Options tunes an Exporter.
type Options struct {
	Media     MediaSource
	Artifacts []Artifact
	Now       func() time.Time
}

// Exporter renders every public URL into an output directory.
type Exporter struct {
	dataDir   string
	renderer  *render.Renderer
	index     *content.Index
	themes    *theme.Registry
	settings  SettingsSource
	media     MediaSource
	artifacts []Artifact
	bus       *hooks.Bus
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   Status
	running bool
	wg      sync.WaitGroup

	// OnExport, when set, observes every finished export.
	OnExport func(ok bool, pages int, d time.Duration)
}

func NewExporter(dataDir string, renderer *render.Renderer, index *content.Index, themes *theme.Registry, settings SettingsSource, bus *hooks.Bus, logger *zap.Logger, opts Options) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{
		dataDir:   dataDir,
		renderer:  renderer,
		index:     index,
		themes:    themes,
		settings:  settings,
		media:     opts.Media,
		artifacts: opts.Artifacts,
		bus:       bus,
		logger:    logger.Named("Static"),
		now:       opts.Now,
		state:     Status{Status: StateIdle},
	}
}

// Status returns a copy of the export state.
func (e *Exporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.LastGenerated != nil {
		t := *s.LastGenerated
		s.LastGenerated = &t
	}
	if s.Settings == (ExportSettings{}) {
		if cfg, err := e.settings.Get(); err == nil {
			s.Settings = exportSettings(cfg)
		}
	}
	return s
}

// Start launches an export in the background. The request context only
// carries values; cancelling it does not stop the export.
func (e *Exporter) Start(ctx context.Context) (Status, error) {
	if !e.begin() {
		return e.Status(), apperr.Conflict("static generation already running")
	}
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
	return e.Status(), nil
}

// Generate runs an export synchronously.
func (e *Exporter) Generate(ctx context.Context) (Result, error) {
	if !e.begin() {
		return Result{}, apperr.Conflict("static generation already running")
	}
	res := e.run(ctx)
	return res, res.Err
}

// Wait blocks until a background export started by Start returns.
func (e *Exporter) Wait() { e.wg.Wait() }

func (e *Exporter) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	e.state.Status = StateGenerating
	e.state.Error = ""
	return true
}

func (e *Exporter) run(ctx context.Context) Result {
	start := time.Now()
	res, cfg := e.export(ctx)
	res.Duration = time.Since(start)

	e.mu.Lock()
	e.running = false
	e.state.Settings = exportSettings(cfg)
	if res.Err != nil {
		e.state.Status = StateFailed
		e.state.Error = res.Err.Error()
	} else {
		now := e.now()
		e.state.Status = StateReady
		e.state.LastGenerated = &now
		e.state.Pages = res.Pages
	}
	e.mu.Unlock()

	if res.Err != nil {
		e.logger.Error("static generation failed", zap.Error(res.Err))
	} else {
		e.logger.Info("static site generated",
			zap.String("dir", res.OutputDir),
			zap.Int("pages", res.Pages),
			zap.Duration("took", res.Duration))
	}
	if e.OnExport != nil {
		e.OnExport(res.Err == nil, res.Pages, res.Duration)
	}
	if e.bus != nil {
		hooks.DoAction(e.bus, GeneratedAction, res)
	}
	return res
}

func exportSettings(s models.Settings) ExportSettings {
	return ExportSettings{
		OutputDir:         s.StaticOutputDir,
		CleanURLs:         s.StaticCleanURLs,
		BaseURL:           s.StaticBaseURL,
		IncludeTaxonomies: s.StaticIncludeTaxonomies,
		MinifyAssets:      s.StaticMinifyAssets,
	}
}

// OutputDir resolves the configured output directory against the data dir.
func (e *Exporter) OutputDir(s models.Settings) string {
	dir := s.StaticOutputDir
	if dir == "" {
		dir = models.DefaultSettings().StaticOutputDir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(e.dataDir, dir)
}

func (e *Exporter) export(ctx context.Context) (Result, models.Settings) {
	cfg, err := e.settings.Get()
	if err != nil {
		return Result{Err: err}, cfg
	}
	out := e.OutputDir(cfg)
	res := Result{OutputDir: out}
	if filepath.Clean(out) == filepath.Clean(e.dataDir) {
		res.Err = apperr.Validation("static output directory cannot be the data directory", map[string]string{"staticOutputDir": "choose a subdirectory"})
		return res, cfg
	}
	if err := os.MkdirAll(filepath.Dir(out), fsutil.DirPerm); err != nil {
		res.Err = err
		return res, cfg
	}
	nonce := uuid.NewString()[:8]
	tmp := out + ".tmp-" + nonce
	if err := os.MkdirAll(tmp, fsutil.DirPerm); err != nil {
		res.Err = err
		return res, cfg
	}
	defer os.RemoveAll(tmp)

	pages, err := e.write(ctx, tmp, cfg)
	if err != nil {
		res.Err = err
		return res, cfg
	}
	if err := swap(tmp, out, nonce); err != nil {
		res.Err = err
		return res, cfg
	}
	res.Pages = pages
	return res, cfg
}

// swap replaces out with tmp. The old tree is moved aside first so the
// directory is never half written.
func swap(tmp, out, nonce string) error {
	old := ""
	if fsutil.Exists(out) {
		old = out + ".old-" + nonce
		if err := os.Rename(out, old); err != nil {
			return fmt.Errorf("move previous export: %w", err)
		}
	}
	if err := os.Rename(tmp, out); err != nil {
		if old != "" {
			_ = os.Rename(old, out)
		}
		return fmt.Errorf("install export: %w", err)
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

// URLs lists every public path an export renders, home first.
func (e *Exporter) URLs(cfg models.Settings) ([]string, error) {
	urls := []string{"/"}
	for _, kind := range []models.Kind{models.KindPost, models.KindPage} {
		items, err := e.index.Items(kind, content.Filter{Status: models.StatusPublished})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			urls = append(urls, render.URLFor(it))
		}
	}
	if cfg.StaticIncludeTaxonomies {
		tags, err := e.index.Tags()
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			urls = append(urls, render.TagURL(t.Slug))
		}
		cats, err := e.index.Categories()
		if err != nil {
			return nil, err
		}
		for _, c := range cats {
			urls = append(urls, render.CategoryURL(c.Slug))
		}
	}
	return urls, nil
}

// FilePath maps a URL path to its file below the output root.
func FilePath(urlPath string, clean bool) string {
	p := strings.Trim(path.Clean("/"+urlPath), "/")
	if p == "" {
		return "index.html"
	}
	if clean {
		return p + "/index.html"
	}
	return p + ".html"
}

func (e *Exporter) write(ctx context.Context, root string, cfg models.Settings) (int, error) {
	urls, err := e.URLs(cfg)
	if err != nil {
		return 0, err
	}
	rw := NewRewriter(cfg.StaticBaseURL, cfg.StaticCleanURLs)
	media := map[string]struct{}{}
	pages := 0
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		page, err := e.renderer.Render(ctx, render.Request{Path: u})
		if err != nil {
			return pages, fmt.Errorf("render %s: %w", u, err)
		}
		if page.Status != http.StatusOK {
			e.logger.Warn("skipping page", zap.String("path", u), zap.Int("status", page.Status))
			continue
		}
		if err := e.page(root, FilePath(u, cfg.StaticCleanURLs), page.Body, rw, media); err != nil {
			return pages, err
		}
		pages++
	}

	nf, err := e.renderer.NotFound(ctx, render.Request{Path: "/404"})
	if err != nil {
		return pages, fmt.Errorf("render 404: %w", err)
	}
	if err := e.page(root, "404.html", nf.Body, rw, media); err != nil {
		return pages, err
	}

	for _, a := range e.artifacts {
		data, err := a.Build()
		if err != nil {
			return pages, fmt.Errorf("build %s: %w", a.Path, err)
		}
		if err := e.file(root, a.Path, data); err != nil {
			return pages, err
		}
	}

	if err := e.assets(root, cfg.StaticMinifyAssets); err != nil {
		return pages, err
	}
	if err := e.uploads(ctx, root, media); err != nil {
		return pages, err
	}
	return pages, nil
}

func (e *Exporter) page(root, rel string, body []byte, rw Rewriter, media map[string]struct{}) error {
	for _, ref := range mediaRefs(body) {
		media[ref] = struct{}{}
	}
	return e.file(root, rel, rw.Rewrite(body))
}

func (e *Exporter) file(root, rel string, data []byte) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !fsutil.Within(root, target) {
		return fmt.Errorf("refusing to write outside export root: %s", rel)
	}
	if err := os.MkdirAll(filepath.Dir(target), fsutil.DirPerm); err != nil {
		return err
	}
	return os.WriteFile(target, data, fsutil.FilePerm)
}

func (e *Exporter) assets(root string, minifyAssets bool) error {
	t, err := e.themes.Active()
	if err != nil {
		return err
	}
	src := filepath.FromSlash(t.AssetsDir)
	if !fsutil.IsDir(src) {
		return nil
	}
	var transform func(string, []byte) ([]byte, error)
	if minifyAssets {
		transform = func(rel string, data []byte) ([]byte, error) {
			out, err := minify(rel, data)
			if err != nil {
				e.logger.Warn("asset left unminified", zap.String("asset", rel), zap.Error(err))
				return data, nil
			}
			return out, nil
		}
	}
	return fsutil.CopyDir(src, filepath.Join(root, "assets"), transform)
}

func (e *Exporter) uploads(ctx context.Context, root string, refs map[string]struct{}) error {
	if e.media == nil || len(refs) == 0 {
		return nil
	}
	names := make([]string, 0, len(refs))
	for rel := range refs {
		names = append(names, rel)
	}
	sort.Strings(names)
	base := filepath.Join(root, filepath.FromSlash(strings.Trim(UploadsPrefix, "/")))
	for _, rel := range names {
		target := filepath.Join(base, filepath.FromSlash(rel))
		if !fsutil.Within(base, target) {
			continue
		}
		rc, err := e.media.OpenUpload(ctx, rel)
		if err != nil {
			e.logger.Warn("referenced media missing", zap.String("file", rel), zap.Error(err))
			continue
		}
		err = fsutil.WriteStream(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
