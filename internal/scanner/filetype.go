package scanner

import (
	"path/filepath"
	"strings"
)

// RepoFileType classifies a discovered file the way the ingestion
// pipeline needs to decide whether it is chunked as code, as a plain
// document, or skipped outright.
type RepoFileType string

const (
	RepoFileCode    RepoFileType = "code"
	RepoFileDoc     RepoFileType = "document"
	RepoFileConfig  RepoFileType = "config"
	RepoFileData    RepoFileType = "data"
	RepoFileBinary  RepoFileType = "binary"
	RepoFileUnknown RepoFileType = "unknown"
)

// fileTypeEntry pairs a RepoFileType with the language tag the
// chunker should use (empty for non-code types).
type fileTypeEntry struct {
	kind     RepoFileType
	language string
}

// repoFileTypeMapping covers every extension the ingestion pipeline
// recognizes, not just the subset the syntax-aware chunker has
// grammars for.
var repoFileTypeMapping = map[string]fileTypeEntry{
	".py":         {RepoFileCode, "python"},
	".pyw":        {RepoFileCode, "python"},
	".js":         {RepoFileCode, "javascript"},
	".jsx":        {RepoFileCode, "javascript"},
	".mjs":        {RepoFileCode, "javascript"},
	".cjs":        {RepoFileCode, "javascript"},
	".vue":        {RepoFileCode, "javascript"},
	".ts":         {RepoFileCode, "typescript"},
	".tsx":        {RepoFileCode, "typescript"},
	".java":       {RepoFileCode, "java"},
	".c":          {RepoFileCode, "cpp"},
	".h":          {RepoFileCode, "cpp"},
	".cc":         {RepoFileCode, "cpp"},
	".cpp":        {RepoFileCode, "cpp"},
	".cxx":        {RepoFileCode, "cpp"},
	".hpp":        {RepoFileCode, "cpp"},
	".go":         {RepoFileCode, "go"},
	".rs":         {RepoFileCode, "rust"},
	".cs":         {RepoFileCode, "csharp"},
	".rb":         {RepoFileCode, "ruby"},
	".php":        {RepoFileCode, "php"},
	".swift":      {RepoFileCode, "swift"},
	".kt":         {RepoFileCode, "kotlin"},
	".kts":        {RepoFileCode, "kotlin"},
	".scala":      {RepoFileCode, "scala"},
	".clj":        {RepoFileCode, "clojure"},
	".sh":         {RepoFileCode, "shell"},
	".bash":       {RepoFileCode, "shell"},
	".zsh":        {RepoFileCode, "shell"},
	".sql":        {RepoFileCode, "sql"},

	".md":         {RepoFileDoc, ""},
	".markdown":   {RepoFileDoc, ""},
	".rst":        {RepoFileDoc, ""},
	".txt":        {RepoFileDoc, ""},
	".adoc":       {RepoFileDoc, ""},

	".json":       {RepoFileConfig, ""},
	".yaml":       {RepoFileConfig, ""},
	".yml":        {RepoFileConfig, ""},
	".toml":       {RepoFileConfig, ""},
	".ini":        {RepoFileConfig, ""},
	".cfg":        {RepoFileConfig, ""},
	".conf":       {RepoFileConfig, ""},
	".env":        {RepoFileConfig, ""},

	".csv":        {RepoFileData, ""},
	".tsv":        {RepoFileData, ""},
	".xml":        {RepoFileData, ""},
}

// repoSpecialBasenames lists extension-less filenames the allow-list
// matches case-insensitively.
var repoSpecialBasenames = map[string]fileTypeEntry{
	"dockerfile":      {RepoFileConfig, ""},
	"makefile":        {RepoFileConfig, ""},
	"readme":          {RepoFileDoc, ""},
	"license":         {RepoFileDoc, ""},
	"changelog":       {RepoFileDoc, ""},
	".gitignore":      {RepoFileConfig, ""},
	".gitattributes":  {RepoFileConfig, ""},
}

// repoBinaryExtensions is the hard-excluded set regardless of any
// allow-list entry (images, archives, compiled objects, media, …).
var repoBinaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".webp": true, ".tiff": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".class": true, ".jar": true, ".war": true, ".pyc": true, ".pyo": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wav": true, ".flac": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".bin": true, ".dat": true, ".pack": true, ".idx": true,
}

// DefaultAllowedExtensions is the configured allow-list default: every
// extension repoFileTypeMapping recognizes (code, document, config
// and data).
func DefaultAllowedExtensions() []string {
	exts := make([]string, 0, len(repoFileTypeMapping))
	for ext := range repoFileTypeMapping {
		exts = append(exts, ext)
	}
	return exts
}

// ClassifyRepoFile returns the file type and language tag for path,
// based on its extension, falling back to the special-basename table
// for extension-less files like Dockerfile or README.
func ClassifyRepoFile(path string) (RepoFileType, string) {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if ext != "" {
		if repoBinaryExtensions[ext] {
			return RepoFileBinary, ""
		}
		if entry, ok := repoFileTypeMapping[ext]; ok {
			return entry.kind, entry.language
		}
	}
	if entry, ok := repoSpecialBasenames[base]; ok {
		return entry.kind, entry.language
	}
	return RepoFileUnknown, ""
}

// IsAllowedRepoFile reports whether path should be ingested: not a
// hard-excluded binary extension, and either its extension is in
// allowExt or its basename (without a leading dot) matches one of the
// special allow-list names, case-insensitively.
func IsAllowedRepoFile(path string, allowExt map[string]bool) bool {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if ext != "" && repoBinaryExtensions[ext] {
		return false
	}
	if ext != "" && allowExt[ext] {
		return true
	}
	if _, ok := repoSpecialBasenames[strings.TrimPrefix(base, ".")]; ok {
		return true
	}
	if _, ok := repoSpecialBasenames[base]; ok {
		return true
	}
	return false
}

// DefaultExcludedDirectories is the directory exclusion list applied
// in addition to any name starting with ".".
func DefaultExcludedDirectories() []string {
	return []string{
		".git", "node_modules", "dist", "build", "target", "out", "bin", "obj",
		"venv", ".venv", "env", ".env", "__pycache__", ".pytest_cache",
		".tox", ".mypy_cache", "vendor", ".idea", ".vscode", ".next", "coverage",
	}
}
