// Package repoident computes the deterministic repository identifier
// used to key vector collections, clone directories, and sessions.
package repoident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var githubURLPattern = regexp.MustCompile(`^https?://(www\.)?github\.com/.+/.+$`)
var gitSuffixPattern = regexp.MustCompile(`^.+/.+\.git$`)

// LooksLikeGitHubURL reports whether s resembles a GitHub repository
// URL well enough to attempt identifier resolution from it (used by
// the query service's session-id fallback).
func LooksLikeGitHubURL(s string) bool {
	s = strings.TrimSpace(s)
	return githubURLPattern.MatchString(s) || gitSuffixPattern.MatchString(s)
}

// Validate reports whether url is a well-formed github.com repository
// URL: scheme http/https (inferred if absent), host github.com, and a
// path of at least owner/repo.
func Validate(rawURL string) bool {
	_, _, err := ExtractOwnerRepo(rawURL)
	return err == nil
}

// ExtractOwnerRepo parses owner and repo name out of a GitHub URL,
// stripping any .git suffix and #fragment.
func ExtractOwnerRepo(rawURL string) (owner, repo string, err error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return "", "", fmt.Errorf("empty repository url")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	const prefixHTTPS = "https://"
	const prefixHTTP = "http://"
	rest := strings.TrimPrefix(strings.TrimPrefix(url, prefixHTTPS), prefixHTTP)

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", "", fmt.Errorf("invalid github url: %s", rawURL)
	}
	host := rest[:slash]
	path := rest[slash+1:]
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("not a github.com url: %s", rawURL)
	}

	parts := make([]string, 0, 2)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid github url path: %s", rawURL)
	}

	owner = parts[0]
	repo = parts[1]
	if i := strings.IndexByte(repo, '#'); i >= 0 {
		repo = repo[:i]
	}
	repo = strings.TrimSuffix(repo, ".git")

	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid github url: %s", rawURL)
	}
	return owner, repo, nil
}

// Identifier computes the deterministic repository identifier:
// github_{owner}_{name}_{first8(sha256("owner/name"))}, all lowercase.
// Two URLs resolving to the same owner/name produce the same
// identifier.
func Identifier(rawURL string) (string, error) {
	owner, repo, err := ExtractOwnerRepo(rawURL)
	if err != nil {
		return "", err
	}
	owner = strings.ToLower(owner)
	repo = strings.ToLower(repo)

	sum := sha256.Sum256([]byte(owner + "/" + repo))
	hash := hex.EncodeToString(sum[:])[:8]

	return fmt.Sprintf("github_%s_%s_%s", owner, repo, hash), nil
}
