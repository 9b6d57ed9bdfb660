package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/repoinsight/internal/gitignore"
)

// RepoFile is one file the ingestion pipeline's scan should process.
type RepoFile struct {
	AbsPath   string
	Path      string // repo-relative, POSIX separators
	FileType  RepoFileType
	Language  string
	Extension string
	Size      int64
}

// RepoScanOptions configures RepoScan (the EXCLUDED_DIRECTORIES and
// ALLOWED_FILE_EXTENSIONS knobs).
type RepoScanOptions struct {
	ExcludedDirs []string
	AllowedExts  []string // empty = DefaultAllowedExtensions()
}

// RepoScan walks root, applying the filter chain in order: skip
// excluded/dot directories, apply .gitignore at the root, then emit a
// file iff it is not hard-excluded as binary and either its extension
// is allow-listed or its basename matches a special-file name.
func RepoScan(ctx context.Context, root string, opts RepoScanOptions) ([]RepoFile, error) {
	excluded := make(map[string]bool, len(opts.ExcludedDirs))
	for _, d := range opts.ExcludedDirs {
		excluded[d] = true
	}

	allowExt := make(map[string]bool, len(opts.AllowedExts))
	for _, e := range opts.AllowedExts {
		allowExt[strings.ToLower(e)] = true
	}
	if len(allowExt) == 0 {
		for _, e := range DefaultAllowedExtensions() {
			allowExt[e] = true
		}
	}

	matcher := gitignore.New()
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, p := range gitignore.ParsePatterns(string(data)) {
			matcher.AddPattern(p)
		}
	}

	var files []RepoFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if name != "." && (strings.HasPrefix(name, ".") || excluded[name]) {
				return filepath.SkipDir
			}
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") && name != ".gitignore" && name != ".gitattributes" {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}
		if !IsAllowedRepoFile(rel, allowExt) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		fileType, language := ClassifyRepoFile(rel)
		files = append(files, RepoFile{
			AbsPath:   path,
			Path:      rel,
			FileType:  fileType,
			Language:  language,
			Extension: strings.ToLower(filepath.Ext(rel)),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
