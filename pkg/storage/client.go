// Package storage mirrors firmware images from an S3 bucket.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/fwci/fw-updater/pkg/security"
)

// objectAPI is the subset of the S3 API the mirror calls
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client reads firmware images from one bucket
type Client struct {
	api    objectAPI
	bucket string
}

// NewClient creates a client for anonymous access to a public bucket
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return newClient(s3.NewFromConfig(cfg), bucket), nil
}

func newClient(api objectAPI, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// ImageObject is a firmware image listed in the bucket
type ImageObject struct {
	Key  string
	Size int64
}

// ListImages lists the firmware image objects under prefix, sorted by key.
// Other objects in the bucket are ignored.
func (c *Client) ListImages(ctx context.Context, prefix string) ([]ImageObject, error) {
	slog.Info("s3_list_images", "bucket", c.bucket, "prefix", prefix)

	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	var images []ImageObject
	ignored := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list firmware images")
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !IsImageKey(key) {
				ignored++
				continue
			}
			images = append(images, ImageObject{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Key < images[j].Key })

	slog.Info("s3_list_images_complete", "prefix", prefix, "image_count", len(images), "ignored", ignored)
	return images, nil
}

// FetchResult describes an image written to disk
type FetchResult struct {
	Key    string
	Path   string
	SHA256 string
	Size   int64
}

// FetchImage downloads key to dest. The body is staged in dest+".part" and
// renamed into place only after the image and total size checks pass, so dest
// never holds a partial or rejected image.
func (c *Client) FetchImage(ctx context.Context, key, dest string, validator *security.Validator) (*FetchResult, error) {
	slog.Info("s3_fetch_image", "bucket", c.bucket, "s3_key", key, "dest", dest)

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get "+key)
	}
	defer out.Body.Close()

	if n := aws.ToInt64(out.ContentLength); n > 0 {
		if err := validator.ValidateImageSize(n); err != nil {
			return nil, err
		}
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		slog.Error("image_stage_failed", "path", tmp, "error", err)
		return nil, errors.Wrap(err, "failed to create staging file")
	}

	hash := sha256.New()
	// One byte past the limit is enough to reject an oversized body.
	size, copyErr := io.Copy(io.MultiWriter(f, hash), io.LimitReader(out.Body, validator.MaxImageSize()+1))
	closeErr := f.Close()

	if err := stageError(copyErr, closeErr, size, validator); err != nil {
		os.Remove(tmp)
		slog.Error("image_fetch_rejected", "s3_key", key, "error", err)
		return nil, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, errors.Wrap(err, "failed to move image into place")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	slog.Info("s3_fetch_image_complete",
		"s3_key", key,
		"size", humanize.IBytes(uint64(size)),
		"path", dest,
		"sha256", checksum[:16]+"...",
	)

	return &FetchResult{Key: key, Path: dest, SHA256: checksum, Size: size}, nil
}

func stageError(copyErr, closeErr error, size int64, validator *security.Validator) error {
	if copyErr != nil {
		return errors.Wrap(copyErr, "failed to download image")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "failed to write image")
	}
	if size > validator.MaxImageSize() {
		return fmt.Errorf("security: image body exceeds max %d", validator.MaxImageSize())
	}
	if err := validator.ValidateImageSize(size); err != nil {
		return err
	}
	return validator.AddSyncedSize(size)
}
