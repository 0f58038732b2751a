package imaging

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, width, height int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, newUniformImage(width, height, color.RGBA{200, 200, 200, 255})); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
}

func TestCache_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.png")
	writeTestPNG(t, path, 40, 30)

	cache := NewCache()
	img, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("dimensions: got %dx%d, want 40x30", img.Bounds().Dx(), img.Bounds().Dy())
	}

	// Second load is served from cache; deleting the file must not matter.
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}
	if _, err := cache.Load(path); err != nil {
		t.Errorf("cached load failed: %v", err)
	}
}

func TestCache_LoadMissing(t *testing.T) {
	cache := NewCache()
	if _, err := cache.Load(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCache_LoadNotAnImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	cache := NewCache()
	if _, err := cache.Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestCache_EvictAndClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.png")
	writeTestPNG(t, path, 10, 10)

	cache := NewCache()
	if _, err := cache.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cache.Evict(path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}
	if _, err := cache.Load(path); err == nil {
		t.Error("expected error after eviction of the only copy")
	}

	cache.Clear()
}
