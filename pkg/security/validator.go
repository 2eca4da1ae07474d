package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// Validator checks firmware image files and mirrored object keys
type Validator struct {
	maxImageSize int64
	maxTotalSize int64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new security validator
func NewValidator(maxImageSize, maxTotalSize int64) *Validator {
	slog.Info("security_validator_init",
		"max_image_size", humanize.IBytes(uint64(maxImageSize)),
		"max_total_size", humanize.IBytes(uint64(maxTotalSize)))

	return &Validator{
		maxImageSize: maxImageSize,
		maxTotalSize: maxTotalSize,
	}
}

// ValidatePath checks for path traversal attacks
// It validates relative paths such as mirrored object keys and search hits
func (v *Validator) ValidatePath(relPath string) error {
	// Reject absolute paths
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		slog.Error("security_path_validation_failed", "path", relPath, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", relPath)
	}

	// Clean the path
	clean := filepath.Clean(filepath.FromSlash(relPath))

	// Reject paths that start with .. (escape current directory)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		slog.Error("security_path_validation_failed", "path", relPath, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", relPath)
	}

	return nil
}

// ValidateImageSize checks if an image is empty or exceeds max image size
func (v *Validator) ValidateImageSize(size int64) error {
	if size <= 0 {
		slog.Error("security_image_empty", "size", size)
		return fmt.Errorf("security: image is empty")
	}
	if size > v.maxImageSize {
		slog.Error("security_image_size_exceeded",
			"image_size", humanize.IBytes(uint64(size)),
			"max_image_size", humanize.IBytes(uint64(v.maxImageSize)))
		return fmt.Errorf("security: image size %d exceeds max %d", size, v.maxImageSize)
	}
	return nil
}

// ValidateImage checks that relPath under root is a regular, non-empty file
// within the size limit, and returns its size
func (v *Validator) ValidateImage(fs afero.Fs, root, relPath string) (int64, error) {
	if err := v.ValidatePath(relPath); err != nil {
		return 0, err
	}

	path := filepath.Join(root, filepath.FromSlash(relPath))
	info, err := fs.Stat(path)
	if err != nil {
		slog.Error("security_image_stat_failed", "path", path, "error", err)
		return 0, fmt.Errorf("security: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		slog.Error("security_image_not_regular", "path", path, "mode", info.Mode().String())
		return 0, fmt.Errorf("security: %s is not a regular file", path)
	}
	if err := v.ValidateImageSize(info.Size()); err != nil {
		return 0, err
	}

	slog.Info("security_image_validated", "path", path, "size", humanize.IBytes(uint64(info.Size())))
	return info.Size(), nil
}

// AddSyncedSize tracks total mirrored size and checks against limit
func (v *Validator) AddSyncedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.currentTotalSize > v.maxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total", humanize.IBytes(uint64(v.currentTotalSize)),
			"max_total", humanize.IBytes(uint64(v.maxTotalSize)),
			"image_size", humanize.IBytes(uint64(size)))
		return fmt.Errorf("security: total synced size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// MaxImageSize returns the largest accepted image size
func (v *Validator) MaxImageSize() int64 {
	return v.maxImageSize
}

// GetCurrentTotalSize returns the current total mirrored size
func (v *Validator) GetCurrentTotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
