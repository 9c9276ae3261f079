package internal

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// removeFile is swapped in tests to simulate a failed removal.
var removeFile = os.Remove

// LockFileName is created in the input folder while a run is mutating it.
const LockFileName = ".snapsift.lock"

// ExtractResult is the outcome for one archive.
type ExtractResult struct {
	Archive string
	Files   int
	Err     error
}

// ExtractArchives unpacks every zip into dest. A broken archive is logged and
// reported; the others still extract.
func ExtractArchives(ctx context.Context, archives []string, dest string, logger *zap.Logger) ([]ExtractResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "extract"))
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	results := make([]ExtractResult, 0, len(archives))
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		n, err := extractZip(archive, dest)
		results = append(results, ExtractResult{Archive: archive, Files: n, Err: err})
		if err != nil {
			logger.Error("archive extraction failed",
				zap.String("path", archive),
				zap.String("op", "extract"),
				zap.Error(err))
			continue
		}
		logger.Info("archive extracted", zap.String("path", archive), zap.Int("files", n))
	}
	return results, nil
}

func extractZip(archive, dest string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, IOError(archive, "open archive", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	files := 0
	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return files, fmt.Errorf("illegal path in archive %s: %q", archive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, IOError(target, "mkdir", err)
			}
			continue
		}
		if err := extractEntry(f, target); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return IOError(target, "mkdir", err)
	}
	rc, err := f.Open()
	if err != nil {
		return DecodeError(f.Name, "open entry", err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return IOError(target, "create", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return IOError(target, "write", err)
	}
	if err := out.Close(); err != nil {
		return IOError(target, "close", err)
	}
	// Keep the archive timestamp so the filesystem fallback sees export time.
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}
	return nil
}

// isPrunable reports whether a file is outside the allow-list or is a
// thumbnail. Converted voice memos and the run lock are kept.
func isPrunable(path string, cfg *Config) bool {
	name := filepath.Base(path)
	if name == LockFileName {
		return false
	}
	if strings.Contains(strings.ToLower(name), "thumbnail") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".mp3" {
		return false
	}
	_, ok := KindForExt(ext, cfg)
	return !ok
}

// PruneFiles removes files that are not allow-listed media, and thumbnails.
// With dryRun nothing is removed. A file that cannot be removed is skipped;
// the per-file failures come back joined, see SplitErrors.
func PruneFiles(root string, cfg *Config, dryRun bool) ([]string, error) {
	var removed []string
	var failures []error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			failures = append(failures, IOError(path, "prune", err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isPrunable(path, cfg) {
			return nil
		}
		if !dryRun {
			if err := removeFile(path); err != nil {
				failures = append(failures, IOError(path, "prune", err))
				return nil
			}
		}
		removed = append(removed, path)
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("error pruning files: %w", err)
	}
	return removed, errors.Join(failures...)
}

// SplitErrors flattens an errors.Join result into its parts.
func SplitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// RemoveEmptyDirs deletes empty directories below root, deepest first, so a
// chain of empty parents disappears in one pass. root itself is kept.
func RemoveEmptyDirs(root string, dryRun bool) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning folders: %w", err)
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	gone := make(map[string]bool)
	var removed []string
	var failures []error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			failures = append(failures, IOError(dir, "readdir", err))
			continue
		}
		empty := true
		for _, e := range entries {
			if !gone[filepath.Join(dir, e.Name())] {
				empty = false
				break
			}
		}
		if !empty {
			continue
		}
		if !dryRun {
			if err := removeFile(dir); err != nil {
				failures = append(failures, IOError(dir, "remove dir", err))
				continue
			}
		}
		gone[dir] = true
		removed = append(removed, dir)
	}
	return removed, errors.Join(failures...)
}
