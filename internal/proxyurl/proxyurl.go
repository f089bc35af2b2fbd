// Package proxyurl builds stable proxy paths for content pipelines that
// rewrite CMS asset references. The file name carried in the path is a
// routing and caching hint only; the block id is the lookup key.
package proxyurl

import (
	"net/url"
	"strings"
)

const basePath = "/image-proxy"

// maxFileNameLength guards against pathological tokens from upstream URLs.
const maxFileNameLength = 120

// For returns the proxy path for a block, e.g.
// /image-proxy/abc123/diagram.png. An empty file name falls back to
// "image".
func For(blockID, fileName string) string {
	name := SanitizeFileName(fileName)
	if name == "" {
		name = "image"
	}
	return basePath + "/" + url.PathEscape(blockID) + "/" + url.PathEscape(name)
}

// SanitizeFileName normalises a file name for use in a proxy path: control
// characters become spaces and overly long names are truncated.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, name)

	runes := []rune(name)
	if len(runes) > maxFileNameLength {
		runes = runes[:maxFileNameLength]
	}
	return strings.TrimSpace(string(runes))
}

// FileNameFromURL extracts the final path segment of a source URL, decoded,
// or "" when nothing usable is present.
func FileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			if decoded, err := url.PathUnescape(segments[i]); err == nil {
				return decoded
			}
			return segments[i]
		}
	}
	return ""
}
