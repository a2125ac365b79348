package convert

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedExts are the file extensions Walk picks up, lower case.
var SupportedExts = []string{"jpeg", "jpg", "tif", "tiff", "xmp", "xpacket"}

// Supported reports whether path has one of SupportedExts, ignoring case.
func Supported(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, s := range SupportedExts {
		if ext == s {
			return true
		}
	}
	return false
}

// Walk collects the supported files under root, sorted by path. Unreadable
// entries are reported and skipped.
func Walk(root string) ([]File, []error) {
	var files []File
	var errs []error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot open %s: %w", path, err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if Supported(path) {
			files = append(files, NewFile(path))
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	sortFiles(files)
	return files, errs
}

// Collect expands paths into files: directories are walked, files named
// explicitly are taken as given. Duplicates are dropped.
func Collect(paths []string) ([]File, []error) {
	seen := make(map[string]bool)
	var files []File
	var errs []error
	add := func(f File) {
		if !seen[f.Path] {
			seen[f.Path] = true
			files = append(files, f)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.IsDir() {
			add(NewFile(filepath.Clean(p)))
			continue
		}
		found, walkErrs := Walk(p)
		errs = append(errs, walkErrs...)
		for _, f := range found {
			add(f)
		}
	}
	sortFiles(files)
	return files, errs
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
