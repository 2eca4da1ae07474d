package security

import (
	"testing"

	"github.com/spf13/afero"
)

func TestValidatePath_PathTraversal(t *testing.T) {
	v := NewValidator(1024, 1024)

	tests := []struct {
		path      string
		shouldErr bool
	}{
		{"D4XX_FW_Image-5.13.0.50.bin", false},
		{"common/fw/D4XX_FW_Image-5.13.0.50.bin", false},
		{"../etc/passwd", true},
		{"/etc/passwd", true},
		{"dir/../file.bin", false},
		{"dir/../../etc/passwd", true},
		{"..", true},
		{"..hidden/file.bin", false},
	}

	for _, tt := range tests {
		err := v.ValidatePath(tt.path)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for path: %s", tt.path)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for path %s: %v", tt.path, err)
		}
	}
}

func TestValidateImageSize(t *testing.T) {
	v := NewValidator(100, 1000)

	if err := v.ValidateImageSize(50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}

	if err := v.ValidateImageSize(150); err == nil {
		t.Error("expected error for size 150 exceeding limit 100")
	}

	if err := v.ValidateImageSize(0); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestValidateImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/src/fw/D4XX_FW_Image-5.13.0.50.bin", []byte("firmware"), 0644)
	afero.WriteFile(fs, "/src/fw/D4XX_FW_Image-5.12.0.10.bin", nil, 0644)
	fs.MkdirAll("/src/fw/L5XX_FW_Image-1.5.8.1.bin", 0755)

	v := NewValidator(1024, 1024)

	size, err := v.ValidateImage(fs, "/src", "fw/D4XX_FW_Image-5.13.0.50.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != int64(len("firmware")) {
		t.Errorf("size = %d, want %d", size, len("firmware"))
	}

	if _, err := v.ValidateImage(fs, "/src", "fw/D4XX_FW_Image-5.12.0.10.bin"); err == nil {
		t.Error("expected error for empty image")
	}
	if _, err := v.ValidateImage(fs, "/src", "fw/L5XX_FW_Image-1.5.8.1.bin"); err == nil {
		t.Error("expected error for directory")
	}
	if _, err := v.ValidateImage(fs, "/src", "fw/missing.bin"); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestAddSyncedSize_ExceedsTotal(t *testing.T) {
	v := NewValidator(1024, 500)

	if err := v.AddSyncedSize(400); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := v.AddSyncedSize(200); err == nil {
		t.Error("expected error when total synced exceeds limit")
	}

	v.Reset()
	if got := v.GetCurrentTotalSize(); got != 0 {
		t.Errorf("total after reset = %d, want 0", got)
	}
}
