package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fwci/fw-updater/pkg/security"
	"github.com/google/go-cmp/cmp"
)

// stubS3 serves objects from memory, pageSize keys per listing page.
type stubS3 struct {
	objects  map[string]string
	pageSize int
	// hideSize lists objects without a size, as some mirrors do.
	hideSize bool
	gets     []string
}

func (s *stubS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := len(keys)
	if s.pageSize > 0 && start+s.pageSize < end {
		end = start + s.pageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, k := range keys[start:end] {
		obj := types.Object{Key: aws.String(k)}
		if !s.hideSize {
			obj.Size = aws.Int64(int64(len(s.objects[k])))
		}
		out.Contents = append(out.Contents, obj)
	}
	return out, nil
}

func (s *stubS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	body, ok := s.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	s.gets = append(s.gets, key)
	out := &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}
	if !s.hideSize {
		out.ContentLength = aws.Int64(int64(len(body)))
	}
	return out, nil
}

func TestListImages(t *testing.T) {
	api := &stubS3{pageSize: 2, objects: map[string]string{
		"fw/D4XX_FW_Image-5.13.0.50.bin":     "d4-image",
		"fw/D4XX_FW_Image-5.13.0.50.bin.sig": "sig",
		"fw/README.md":                       "readme",
		"fw/old/SRXX_FW_Image-3.26.1.0.bin":  "sr",
		"other/L5XX_FW_Image-1.5.8.1.bin":    "l5",
	}}

	images, err := newClient(api, "fw-images").ListImages(context.Background(), "fw/")
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}

	want := []ImageObject{
		{Key: "fw/D4XX_FW_Image-5.13.0.50.bin", Size: 8},
		{Key: "fw/old/SRXX_FW_Image-3.26.1.0.bin", Size: 2},
	}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Errorf("ListImages mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchImage(t *testing.T) {
	api := &stubS3{objects: map[string]string{"D4XX_FW_Image-5.13.0.50.bin": "d4-image"}}
	validator := security.NewValidator(1024, 1024)
	dest := filepath.Join(t.TempDir(), "D4XX_FW_Image-5.13.0.50.bin")

	res, err := newClient(api, "fw-images").FetchImage(context.Background(), "D4XX_FW_Image-5.13.0.50.bin", dest, validator)
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}

	if res.Size != 8 || res.Path != dest || len(res.SHA256) != 64 {
		t.Errorf("unexpected result: %+v", res)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "d4-image" {
		t.Errorf("image content = %q, %v", got, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("staging file left behind")
	}
	if validator.GetCurrentTotalSize() != 8 {
		t.Errorf("validator total = %d, want 8", validator.GetCurrentTotalSize())
	}
}

func TestFetchImage_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		hideSize bool
		maxImage int64
		maxTotal int64
	}{
		{"declared size over limit", "0123456789", false, 4, 1024},
		{"undeclared body over limit", "0123456789", true, 4, 1024},
		{"empty body", "", true, 1024, 1024},
		{"total budget exceeded", "0123456789", false, 1024, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubS3{hideSize: tt.hideSize, objects: map[string]string{"D4XX_FW_Image-1.0.bin": tt.body}}
			dir := t.TempDir()
			dest := filepath.Join(dir, "D4XX_FW_Image-1.0.bin")

			_, err := newClient(api, "fw-images").FetchImage(context.Background(), "D4XX_FW_Image-1.0.bin", dest, security.NewValidator(tt.maxImage, tt.maxTotal))
			if err == nil {
				t.Fatal("expected rejection")
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("expected empty directory, found %d entries", len(entries))
			}
		})
	}
}

func TestFetchImage_MissingKey(t *testing.T) {
	api := &stubS3{objects: map[string]string{}}
	dest := filepath.Join(t.TempDir(), "D4XX_FW_Image-1.0.bin")

	if _, err := newClient(api, "fw-images").FetchImage(context.Background(), "D4XX_FW_Image-1.0.bin", dest, security.NewValidator(1024, 1024)); err == nil {
		t.Fatal("expected error for missing key")
	}
}
