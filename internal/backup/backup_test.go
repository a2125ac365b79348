package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		path string
		opts Options
		want string
	}{
		{path: "/a/photo.jpg", want: "/a/photo.jpg.bak"},
		{path: "/a/photo", want: "/a/photo.bak"},
		{path: "/a/photo.tif", opts: Options{Compression: CompressionZstd}, want: "/a/photo.tif.bak.zst"},
		{path: "/a/photo.tif", opts: Options{Compression: CompressionLZ4, Dir: "/b"}, want: "/b/photo.tif.bak.lz4"},
	}
	for _, tc := range tests {
		if got := PathFor(tc.path, tc.opts); got != filepath.FromSlash(tc.want) {
			t.Fatalf("PathFor(%s) = %s, want %s", tc.path, got, tc.want)
		}
	}
}

func TestCreateRestore(t *testing.T) {
	original := bytes.Repeat([]byte("<rdf:li>metadata</rdf:li>\n"), 200)
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "photo.jpg")
			if err := os.WriteFile(path, original, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			opts := Options{Mode: ModeKeep, Compression: c}
			bak, err := Create(path, opts)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if bak != PathFor(path, opts) {
				t.Fatalf("backup path = %s", bak)
			}
			stored, err := os.ReadFile(bak)
			if err != nil {
				t.Fatalf("read backup: %v", err)
			}
			if c != CompressionNone && len(stored) >= len(original) {
				t.Fatalf("%s backup not compressed: %d bytes", c, len(stored))
			}
			if _, err := Create(path, opts); !errors.Is(err, ErrBackupExists) {
				t.Fatalf("second Create error = %v, want ErrBackupExists", err)
			}
			if err := os.WriteFile(path, []byte("rewritten"), 0o644); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			found, ok := Find(path, "")
			if !ok || found != bak {
				t.Fatalf("Find = %s, %v", found, ok)
			}
			if err := Restore(found, path); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read restored: %v", err)
			}
			if !bytes.Equal(got, original) {
				t.Fatalf("restored %d bytes, want original %d", len(got), len(original))
			}
		})
	}
}

func TestCreateModes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.xmp")
	if err := os.WriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if bak, err := Create(path, Options{Mode: ModeNone}); err != nil || bak != "" {
		t.Fatalf("Create(none) = %q, %v", bak, err)
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ModeNone wrote a backup")
	}
	if _, err := Create(path, Options{Mode: ModeKeep}); err != nil {
		t.Fatalf("Create(keep): %v", err)
	}
	if err := os.WriteFile(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Create(path, Options{Mode: ModeOverwrite}); err != nil {
		t.Fatalf("Create(overwrite): %v", err)
	}
	if got, _ := os.ReadFile(path + ".bak"); string(got) != "two" {
		t.Fatalf("backup = %q, want two", got)
	}
}

func TestParse(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeKeep {
		t.Fatalf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Fatalf("ParseMode accepted an unknown mode")
	}
	if c, err := ParseCompression("ZSTD"); err != nil || c != CompressionZstd {
		t.Fatalf("ParseCompression = %v, %v", c, err)
	}
}
