// Package locator resolves firmware images and the updater tool inside a
// source tree.
//
// Matching is a pure function over slash-separated relative paths; traversal
// is done lazily over an afero filesystem so tests can run on an in-memory tree.
package locator

import (
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fwci/fw-updater/pkg/security"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when a search yields no matching path.
var ErrNotFound = errors.New("locator: no matching file")

// ImageSuffix sits between the product line prefix and the version in image names.
const ImageSuffix = "XX_FW_Image-"

// ImageRef is a resolved firmware image.
type ImageRef struct {
	Path        string
	RelPath     string
	ProductLine string
	Version     string
	Size        int64
}

// ImageName builds the canonical image basename for a product line and version,
// e.g. "D400", "5.13.0.50" -> "D4XX_FW_Image-5.13.0.50.bin".
func ImageName(productLine, version string) string {
	prefix := productLine
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return strings.ToUpper(prefix) + ImageSuffix + version + ".bin"
}

// Match reports whether relPath names basename, anchored at a path component
// boundary and at the end of the string.
func Match(relPath, basename string) bool {
	if basename == "" {
		return false
	}
	if relPath == basename {
		return true
	}
	return strings.HasSuffix(relPath, "/"+basename)
}

// First returns the first path in seq that matches basename.
func First(seq iter.Seq[string], basename string) (string, bool) {
	for p := range seq {
		if Match(p, basename) {
			return p, true
		}
	}
	return "", false
}

// Locator searches a source tree rooted at Root. Images missing from the
// tree are looked up in the mirror directory when one is set.
type Locator struct {
	fs        afero.Fs
	root      string
	mirror    string
	validator *security.Validator
}

// New creates a locator. validator may be nil to skip image checks.
func New(fsys afero.Fs, root string, validator *security.Validator) *Locator {
	return &Locator{fs: fsys, root: root, validator: validator}
}

// WithMirror sets the directory of images mirrored by sync-images.
func (l *Locator) WithMirror(dir string) *Locator {
	l.mirror = dir
	return l
}

// Root returns the search root.
func (l *Locator) Root() string {
	return l.root
}

var errStopWalk = errors.New("stop walk")

// Find lazily yields slash-separated paths of regular files relative to the
// root. The sequence is single pass; each range over it walks the tree again.
func (l *Locator) Find() iter.Seq[string] {
	return l.walk(l.root)
}

func (l *Locator) walk(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		err := afero.Walk(l.fs, root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				slog.Warn("locator_walk_error", "path", path, "error", err)
				return nil
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			if !yield(filepath.ToSlash(rel)) {
				return errStopWalk
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			slog.Warn("locator_walk_failed", "root", root, "error", err)
		}
	}
}

// LocateImage resolves the firmware image for a product line and version.
func (l *Locator) LocateImage(productLine, version string) (*ImageRef, error) {
	name := ImageName(productLine, version)
	base := l.root
	rel, ok := First(l.walk(base), name)
	if !ok && l.mirror != "" {
		base = l.mirror
		rel, ok = First(l.walk(base), name)
	}
	if !ok {
		slog.Error("image_not_found", "root", l.root, "mirror", l.mirror, "name", name)
		return nil, ErrNotFound
	}

	ref := &ImageRef{
		Path:        filepath.Join(base, filepath.FromSlash(rel)),
		RelPath:     rel,
		ProductLine: productLine,
		Version:     version,
	}
	if l.validator != nil {
		size, err := l.validator.ValidateImage(l.fs, base, rel)
		if err != nil {
			return nil, err
		}
		ref.Size = size
	}

	slog.Info("image_located", "name", name, "path", ref.Path)
	return ref, nil
}

// LocateTool resolves an executable by its fixed basename.
func (l *Locator) LocateTool(name string) (string, error) {
	rel, ok := First(l.Find(), name)
	if !ok {
		slog.Error("tool_not_found", "root", l.root, "name", name)
		return "", ErrNotFound
	}
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	slog.Info("tool_located", "name", name, "path", path)
	return path, nil
}
