package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEncode_ImageDataURI(t *testing.T) {
	path := writeFile(t, "pixel.png", []byte{0x89, 'P', 'N', 'G'})
	item, err := Validate(path, KindImage)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	p, err := Encode(item)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer p.Release()

	if !strings.HasPrefix(p.DataURI, "data:image/png;base64,") {
		t.Errorf("data URI prefix wrong: %q", p.DataURI)
	}
	if p.FilePath() != "" {
		t.Errorf("image preview should not carry a file handle, got %q", p.FilePath())
	}
}

func TestEncode_VideoHandle(t *testing.T) {
	path := writeFile(t, "clip.mp4", []byte("not really a video"))
	item, err := Validate(path, KindVideo)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	p, err := Encode(item)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if p.FilePath() != path {
		t.Errorf("video preview path = %q, want %q", p.FilePath(), path)
	}
	if p.DataURI != "" {
		t.Error("video preview should not build a data URI")
	}

	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Releasing twice must be safe.
	if err := p.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestEncodeAll_FailureIsolation(t *testing.T) {
	good1 := writeFile(t, "a.jpg", []byte("aa"))
	good2 := writeFile(t, "b.jpg", []byte("bb"))

	items := []*Item{
		{Kind: KindImage, Path: good1, Name: "a.jpg", MIMEType: "image/jpeg"},
		{Kind: KindImage, Path: filepath.Join(t.TempDir(), "missing.jpg"), Name: "missing.jpg", MIMEType: "image/jpeg"},
		{Kind: KindImage, Path: good2, Name: "b.jpg", MIMEType: "image/jpeg"},
	}

	err := EncodeAll(items)
	if err == nil {
		t.Fatal("expected EncodeAll to report the missing file")
	}

	// The failure must not block the other encodings.
	if items[0].Preview == nil || items[2].Preview == nil {
		t.Error("healthy items should still have previews")
	}
	if items[1].Preview != nil {
		t.Error("failed item should have no preview")
	}

	if err := ReleaseAll(items); err != nil {
		t.Fatalf("release all: %v", err)
	}
}
