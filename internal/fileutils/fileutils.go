// Package fileutils is the host filesystem collaborator of the pipeline.
// Uploads arrive as URIs: plain paths and file:// URIs are read directly,
// while content:// and other schemes are opaque handles that can only be
// copied to a local path first.
package fileutils

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrOpaqueURI is returned when an opaque handle is read without being materialized.
var ErrOpaqueURI = errors.New("opaque URI must be copied to a local file before reading")

// Info is the metadata the pipeline needs about an upload.
type Info struct {
	URI      string
	Name     string
	Size     int64
	MimeType string
	ModTime  time.Time
}

// FileSystem is the minimal set of host file operations the pipeline uses.
type FileSystem interface {
	Stat(ctx context.Context, uri string) (Info, error)
	ReadAsText(ctx context.Context, uri string) (string, error)
	ReadAsBase64(ctx context.Context, uri string) (string, error)
	Copy(ctx context.Context, from, to string) error
	Delete(ctx context.Context, uri string) error
}

// IsOpaque reports whether uri is a handle that is not directly readable as
// a local path. Single-letter schemes are Windows drive letters, not schemes.
func IsOpaque(uri string) bool {
	scheme := Scheme(uri)
	return scheme != "" && scheme != "file"
}

// Scheme returns the lower-cased URI scheme, or "" for plain paths.
func Scheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 1 {
		return ""
	}
	scheme := strings.ToLower(uri[:i])
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return ""
		}
	}
	return scheme
}

// LocalPath converts a plain path or file:// URI into a filesystem path.
func LocalPath(uri string) (string, error) {
	switch Scheme(uri) {
	case "":
		return uri, nil
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return "", err
		}
		return u.Path, nil
	default:
		return "", ErrOpaqueURI
	}
}

// DisplayName returns the last path element of a URI, unescaped.
func DisplayName(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if unescaped, err := url.PathUnescape(trimmed); err == nil {
		return unescaped
	}
	return trimmed
}
