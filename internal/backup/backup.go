// Package backup copies files aside before their metadata is rewritten.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var ErrBackupExists = errors.New("backup file already exists")

type Mode string

const (
	// ModeKeep refuses to replace an existing backup.
	ModeKeep      Mode = "keep"
	ModeOverwrite Mode = "overwrite"
	ModeNone      Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeKeep, ModeOverwrite, ModeNone:
		return m, nil
	case "":
		return ModeKeep, nil
	default:
		return "", fmt.Errorf("unknown backup mode %q", s)
	}
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	case "":
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown backup compression %q", s)
	}
}

func (c Compression) suffix() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	}
	return ""
}

type Options struct {
	Mode        Mode
	Compression Compression
	// Dir holds backups when set; otherwise they sit next to the file.
	Dir string
}

// PathFor returns where the backup of path is written: "name.ext.bak", or
// "name.bak" without extension, plus the compression suffix.
func PathFor(path string, opts Options) string {
	base := filepath.Base(path) + ".bak"
	dir := filepath.Dir(path)
	if opts.Dir != "" {
		dir = opts.Dir
	}
	return filepath.Join(dir, base+opts.Compression.suffix())
}

// Create backs up path according to opts and returns the backup path, or ""
// when backups are disabled.
func Create(path string, opts Options) (string, error) {
	if opts.Mode == ModeNone {
		return "", nil
	}
	target := PathFor(path, opts)
	if opts.Mode != ModeOverwrite {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("%w: %s", ErrBackupExists, target)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if err := copyCompressed(tmp, src, opts.Compression); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

func copyCompressed(dst io.Writer, src io.Reader, c Compression) error {
	switch c {
	case CompressionZstd:
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, src); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case CompressionLZ4:
		lw := lz4.NewWriter(dst)
		if _, err := io.Copy(lw, src); err != nil {
			lw.Close()
			return err
		}
		return lw.Close()
	case CompressionNone, "":
		_, err := io.Copy(dst, src)
		return err
	default:
		return fmt.Errorf("unknown backup compression %q", c)
	}
}

// CompressionOf infers the compression of a backup from its name.
func CompressionOf(backupPath string) Compression {
	switch {
	case strings.HasSuffix(backupPath, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(backupPath, ".lz4"):
		return CompressionLZ4
	}
	return CompressionNone
}

// Restore replaces dst with the contents of backupPath, decompressing when
// the name says so.
func Restore(backupPath, dst string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var r io.Reader = src
	switch CompressionOf(backupPath) {
	case CompressionZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return fmt.Errorf("open zstd backup: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionLZ4:
		r = lz4.NewReader(src)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".restore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("restore %s: %w", dst, err)
	}
	if info, err := os.Stat(dst); err == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Find returns the existing backup of path, trying every compression.
func Find(path string, dir string) (string, bool) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		candidate := PathFor(path, Options{Compression: c, Dir: dir})
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}
