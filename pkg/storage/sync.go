package storage

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/security"
)

// SyncResult summarises one mirror pass
type SyncResult struct {
	Downloaded []string
	Skipped    []string
	Bytes      int64
}

// IsImageKey reports whether key names a firmware image object
func IsImageKey(key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	base := path.Base(key)
	return strings.Contains(base, "_FW_Image-") && strings.HasSuffix(base, ".bin")
}

// SyncImages mirrors the firmware images under prefix into dir, keeping the
// key layout below prefix. Images already present locally are skipped.
func SyncImages(ctx context.Context, client *Client, prefix, dir string, validator *security.Validator) (*SyncResult, error) {
	images, err := client.ListImages(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create image directory")
	}

	result := &SyncResult{}
	for _, img := range images {
		rel := strings.TrimPrefix(strings.TrimPrefix(img.Key, prefix), "/")
		if err := validator.ValidatePath(rel); err != nil {
			return result, err
		}

		dest := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(dest); err == nil {
			slog.Info("image_sync_skipped", "s3_key", img.Key, "path", dest)
			result.Skipped = append(result.Skipped, img.Key)
			continue
		}

		// Listed sizes reject oversized images before any download.
		if img.Size > 0 {
			if err := validator.ValidateImageSize(img.Size); err != nil {
				return result, err
			}
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return result, errors.Wrap(err, "failed to create image directory")
		}

		fetched, err := client.FetchImage(ctx, img.Key, dest, validator)
		if err != nil {
			return result, err
		}

		result.Downloaded = append(result.Downloaded, img.Key)
		result.Bytes += fetched.Size
	}

	slog.Info("image_sync_complete",
		"downloaded", len(result.Downloaded),
		"skipped", len(result.Skipped),
		"total", humanize.IBytes(uint64(result.Bytes)))
	return result, nil
}
