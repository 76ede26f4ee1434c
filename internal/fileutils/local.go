package fileutils

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS implements FileSystem on the OS filesystem. content://authority/path
// URIs resolve below ContentRoot and may only be stat'ed, copied or deleted.
type LocalFS struct {
	ContentRoot string
}

// NewLocalFS returns a LocalFS resolving content:// URIs below contentRoot.
func NewLocalFS(contentRoot string) *LocalFS {
	return &LocalFS{ContentRoot: contentRoot}
}

func (l *LocalFS) resolve(uri string, allowOpaque bool) (string, error) {
	path, err := LocalPath(uri)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, ErrOpaqueURI) {
		return "", err
	}
	if !allowOpaque {
		return "", fmt.Errorf("%s: %w", uri, ErrOpaqueURI)
	}
	if Scheme(uri) != "content" || l.ContentRoot == "" {
		return "", fmt.Errorf("no content provider for %s", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid content URI %s: %w", uri, err)
	}
	rel := filepath.Clean(filepath.Join(u.Host, filepath.FromSlash(u.Path)))
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("content URI %s escapes the content root", uri)
	}
	return filepath.Join(l.ContentRoot, rel), nil
}

// Stat returns metadata, sniffing the MIME type from the first 512 bytes.
func (l *LocalFS) Stat(ctx context.Context, uri string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	path, err := l.resolve(uri, true)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat %s: %w", uri, err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", uri)
	}
	return Info{
		URI:      uri,
		Name:     DisplayName(uri),
		Size:     st.Size(),
		MimeType: sniffMimeType(path),
		ModTime:  st.ModTime(),
	}, nil
}

func (l *LocalFS) ReadAsText(ctx context.Context, uri string) (string, error) {
	data, err := l.read(ctx, uri)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *LocalFS) ReadAsBase64(ctx context.Context, uri string) (string, error) {
	data, err := l.read(ctx, uri)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (l *LocalFS) read(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.resolve(uri, false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from the caller's upload
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, ctx.Err()
}

// Copy copies from (local or content://) to a local destination. A partial
// destination is removed when the copy fails or ctx is cancelled.
func (l *LocalFS) Copy(ctx context.Context, from, to string) (err error) {
	src, err := l.resolve(from, true)
	if err != nil {
		return err
	}
	dst, err := l.resolve(to, false)
	if err != nil {
		return err
	}

	in, err := os.Open(src) // #nosec G304 -- resolved below the content root or a caller path
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", to, cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, &contextReader{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("failed to copy %s: %w", from, err)
	}
	return nil
}

// Delete removes uri. Deleting a missing file is not an error.
func (l *LocalFS) Delete(_ context.Context, uri string) error {
	path, err := l.resolve(uri, true)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", uri, err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var statementMimeTypes = map[string]string{
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
}

func sniffMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if known, ok := statementMimeTypes[ext]; ok {
		return known
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return strings.Split(byExt, ";")[0]
	}
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return strings.ToLower(strings.Split(http.DetectContentType(buf[:n]), ";")[0])
}
