package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwci/fw-updater/pkg/security"
	"github.com/google/go-cmp/cmp"
)

func TestIsImageKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"fw/D4XX_FW_Image-5.13.0.50.bin", true},
		{"SRXX_FW_Image-3.26.1.0.bin", true},
		{"fw/D4XX_FW_Image-5.13.0.50.bin.sig", false},
		{"fw/README.md", false},
		{"fw/D4XX_FW_Image-5.13.0.50.bin/", false},
		{"fw/other.bin", false},
	}

	for _, tt := range tests {
		if got := IsImageKey(tt.key); got != tt.want {
			t.Errorf("IsImageKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestSyncImages(t *testing.T) {
	dir := t.TempDir()
	api := &stubS3{pageSize: 1, objects: map[string]string{
		"fw/D4XX_FW_Image-5.13.0.50.bin": "d4-image",
		"fw/old/SRXX_FW_Image-3.0.0.bin": "sr-image",
		"fw/notes.txt":                   "ignored",
		"fw/L5XX_FW_Image-1.5.8.1.bin":   "cached",
	}}

	os.WriteFile(filepath.Join(dir, "L5XX_FW_Image-1.5.8.1.bin"), []byte("cached"), 0644)

	validator := security.NewValidator(1024, 4096)
	result, err := SyncImages(context.Background(), newClient(api, "fw-images"), "fw/", dir, validator)
	if err != nil {
		t.Fatalf("SyncImages: %v", err)
	}

	if diff := cmp.Diff([]string{"fw/L5XX_FW_Image-1.5.8.1.bin"}, result.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	wantDownloaded := []string{"fw/D4XX_FW_Image-5.13.0.50.bin", "fw/old/SRXX_FW_Image-3.0.0.bin"}
	if diff := cmp.Diff(wantDownloaded, result.Downloaded); diff != "" {
		t.Errorf("downloaded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantDownloaded, api.gets); diff != "" {
		t.Errorf("S3 reads mismatch (-want +got):\n%s", diff)
	}
	if result.Bytes != int64(len("d4-image")+len("sr-image")) {
		t.Errorf("bytes = %d", result.Bytes)
	}
	if validator.GetCurrentTotalSize() != result.Bytes {
		t.Errorf("validator total = %d, want %d", validator.GetCurrentTotalSize(), result.Bytes)
	}

	got, err := os.ReadFile(filepath.Join(dir, "old", "SRXX_FW_Image-3.0.0.bin"))
	if err != nil || string(got) != "sr-image" {
		t.Errorf("nested image not mirrored: %q, %v", got, err)
	}
}

func TestSyncImages_RejectsListedOversizedImage(t *testing.T) {
	dir := t.TempDir()
	api := &stubS3{objects: map[string]string{
		"D4XX_FW_Image-5.13.0.50.bin": "0123456789",
	}}

	_, err := SyncImages(context.Background(), newClient(api, "fw-images"), "", dir, security.NewValidator(4, 1024))
	if err == nil {
		t.Fatal("expected size error")
	}
	if len(api.gets) != 0 {
		t.Errorf("downloaded %v despite listed size", api.gets)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty image dir, found %d entries", len(entries))
	}
}

func TestSyncImages_RejectsTraversal(t *testing.T) {
	api := &stubS3{objects: map[string]string{
		"../D4XX_FW_Image-5.13.0.50.bin": "image",
	}}

	_, err := SyncImages(context.Background(), newClient(api, "fw-images"), "", t.TempDir(), security.NewValidator(1024, 1024))
	if err == nil {
		t.Fatal("expected traversal error")
	}
	if len(api.gets) != 0 {
		t.Errorf("downloaded %v despite traversal", api.gets)
	}
}
