package theme

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/modules/hooks"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/fsutil"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

// State is one step of an installation attempt.
type State string

const (
	StateIdle       State = "idle"
	StateReceiving  State = "receiving"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateStaged     State = "staged"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
)

const (
	uploadDir  = "_temp_upload"
	extractDir = "_temp_extract"
	backupDir  = "_temp_backup"

	// DefaultMaxPackageSize bounds uploaded archives.
	DefaultMaxPackageSize int64 = 50 << 20
	// unpacked content may not exceed this multiple of the archive limit
	maxExpansion = 10
)

// InstalledAction fires after a theme is committed.
var InstalledAction = hooks.NewAction[models.Theme]("themeInstalled")

// InstallOptions tunes one installation.
type InstallOptions struct {
	// AllowUpdate replaces an existing theme with the same or an older version.
	AllowUpdate bool
}

// Result reports an installation attempt.
type Result struct {
	Theme           models.Theme `json:"theme"`
	States          []State      `json:"states"`
	Upgraded        bool         `json:"upgraded"`
	PreviousVersion string       `json:"previousVersion,omitempty"`
}

// Installer turns uploaded zip packages into installed themes. Attempts are serialized.
type Installer struct {
	registry *Registry
	bus      *hooks.Bus
	maxSize  int64
	logger   *zap.Logger
	mu       sync.Mutex
	nonce    func() string
}

func NewInstaller(registry *Registry, bus *hooks.Bus, maxSize int64, logger *zap.Logger) *Installer {
	if maxSize <= 0 {
		maxSize = DefaultMaxPackageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		registry: registry,
		bus:      bus,
		maxSize:  maxSize,
		logger:   logger.Named("ThemeInstaller"),
		nonce:    func() string { return uuid.NewString() },
	}
}

type attempt struct {
	states []State
	logger *zap.Logger
}

func (a *attempt) enter(s State) {
	a.states = append(a.states, s)
	a.logger.Debug("install state", zap.String("state", string(s)))
}

// Install runs the full pipeline for one package read from src.
func (in *Installer) Install(ctx context.Context, src io.Reader, opts InstallOptions) (*Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	nonce := in.nonce()
	att := &attempt{states: []State{StateIdle}, logger: in.logger.With(zap.String("attempt", nonce))}
	res, err := in.run(ctx, att, nonce, src, opts)
	if err != nil {
		att.enter(StateRejected)
		in.logger.Warn("theme install rejected", zap.String("attempt", nonce), zap.Error(err))
		return &Result{States: att.states}, err
	}
	att.enter(StateCommitted)
	res.States = att.states
	in.logger.Info("theme installed",
		zap.String("theme", res.Theme.Name),
		zap.String("version", res.Theme.Manifest.Version),
		zap.Bool("upgraded", res.Upgraded))
	if in.bus != nil {
		hooks.DoAction(in.bus, InstalledAction, res.Theme)
	}
	return res, nil
}

func (in *Installer) run(ctx context.Context, att *attempt, nonce string, src io.Reader, opts InstallOptions) (*Result, error) {
	root := in.registry.Dir()

	att.enter(StateReceiving)
	pkg, err := in.receive(root, nonce, src)
	if pkg != "" {
		defer os.Remove(pkg)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	att.enter(StateExtracting)
	staging := filepath.Join(root, extractDir, nonce)
	defer os.RemoveAll(staging)
	if err := in.extract(pkg, staging); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	att.enter(StateValidating)
	top, manifest, err := validatePackage(staging)
	if err != nil {
		return nil, err
	}
	name := manifest.Name
	if name == "" {
		name = slug.Make(top)
	}
	if name == "" || strings.HasPrefix(name, reservedPrefix) {
		return nil, apperr.InvalidPackage("invalid theme name", map[string]string{"name": "theme name could not be derived"})
	}

	att.enter(StateStaged)
	target := filepath.Join(root, name)
	res := &Result{}
	if fsutil.Exists(target) {
		prev := installedVersion(target)
		res.PreviousVersion = prev
		switch {
		case prev != "" && CompareVersions(manifest.Version, prev) > 0:
			res.Upgraded = true
		case opts.AllowUpdate:
			res.Upgraded = true
		default:
			return nil, apperr.AlreadyInstalled("theme %s %s is already installed", name, prev)
		}
	}
	if err := commit(filepath.Join(staging, top), target, filepath.Join(root, backupDir+"_"+nonce)); err != nil {
		return nil, apperr.Internal("commit theme", err)
	}

	if err := in.registry.Discover(); err != nil {
		return nil, err
	}
	t, err := in.registry.Get(name)
	if err != nil {
		return nil, err
	}
	res.Theme = t
	return res, nil
}

func (in *Installer) receive(root, nonce string, src io.Reader) (string, error) {
	dir := filepath.Join(root, uploadDir)
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		return "", apperr.Internal("create upload dir", err)
	}
	pkg := filepath.Join(dir, nonce+".zip")
	f, err := os.Create(pkg)
	if err != nil {
		return "", apperr.Internal("create upload file", err)
	}
	n, err := io.Copy(f, io.LimitReader(src, in.maxSize+1))
	closeErr := f.Close()
	if err != nil {
		return pkg, apperr.Internal("receive package", err)
	}
	if closeErr != nil {
		return pkg, apperr.Internal("receive package", closeErr)
	}
	if n > in.maxSize {
		return pkg, apperr.InvalidPackage("package too large",
			map[string]string{"package": fmt.Sprintf("package exceeds %d MB", in.maxSize>>20)})
	}
	if n == 0 {
		return pkg, apperr.InvalidPackage("empty package", map[string]string{"package": "no data received"})
	}
	return pkg, nil
}

func (in *Installer) extract(pkg, staging string) error {
	zr, err := zip.OpenReader(pkg)
	if err != nil {
		return apperr.InvalidPackage("package is not a zip archive", map[string]string{"package": err.Error()})
	}
	defer zr.Close()

	if err := os.MkdirAll(staging, fsutil.DirPerm); err != nil {
		return apperr.Internal("create staging dir", err)
	}
	budget := in.maxSize * maxExpansion
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if skipEntry(name) {
			continue
		}
		clean := path.Clean(name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return apperr.InvalidPackage("unsafe archive entry", map[string]string{"package": "entry escapes the archive root: " + f.Name})
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return apperr.InvalidPackage("unsafe archive entry", map[string]string{"package": "symbolic links are not allowed: " + f.Name})
		}
		target := filepath.Join(staging, filepath.FromSlash(clean))
		if !fsutil.Within(staging, target) {
			return apperr.InvalidPackage("unsafe archive entry", map[string]string{"package": "entry escapes the archive root: " + f.Name})
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, fsutil.DirPerm); err != nil {
				return apperr.Internal("extract package", err)
			}
			continue
		}
		budget -= int64(f.UncompressedSize64)
		if budget < 0 {
			return apperr.InvalidPackage("package too large", map[string]string{"package": "unpacked size exceeds the limit"})
		}
		rc, err := f.Open()
		if err != nil {
			return apperr.InvalidPackage("corrupt archive entry", map[string]string{"package": f.Name})
		}
		err = fsutil.WriteStream(target, io.LimitReader(rc, int64(f.UncompressedSize64)+1))
		rc.Close()
		if err != nil {
			return apperr.Internal("extract package", err)
		}
	}
	return nil
}

func skipEntry(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == "__MACOSX" || (strings.HasPrefix(part, ".") && part != "." && part != "..") {
			return true
		}
	}
	return false
}

// validatePackage checks the staged tree and returns the top-level directory name.
func validatePackage(staging string) (string, models.ThemeManifest, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", models.ThemeManifest{}, apperr.Internal("read staging dir", err)
	}
	var dirs []string
	files := 0
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			files++
		}
	}
	if len(dirs) != 1 || files > 0 {
		return "", models.ThemeManifest{}, apperr.InvalidPackage("invalid package layout",
			map[string]string{"package": "archive must contain exactly one top-level directory"})
	}
	top := dirs[0]
	data, err := os.ReadFile(filepath.Join(staging, top, ManifestFile))
	if err != nil {
		return "", models.ThemeManifest{}, apperr.InvalidPackage("missing theme.json",
			map[string]string{"theme.json": "theme.json is required in " + top + "/"})
	}
	m, err := ParseManifest(data)
	if err != nil {
		return "", m, err
	}
	if !fsutil.IsDir(filepath.Join(staging, top, TemplatesDir)) {
		return "", m, apperr.InvalidPackage("missing templates directory",
			map[string]string{"templates": "templates/ is required"})
	}
	return top, m, nil
}

func installedVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return ""
	}
	// a broken manifest still yields whatever version it declares
	m, _ := ParseManifest(data)
	return m.Version
}

// commit moves staged into target. An existing target is parked in backup and
// restored if the swap fails.
func commit(staged, target, backup string) error {
	hadOld := fsutil.Exists(target)
	if hadOld {
		if err := os.Rename(target, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(staged, target); err != nil {
		if hadOld {
			if rerr := os.Rename(backup, target); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	if hadOld {
		return os.RemoveAll(backup)
	}
	return nil
}
