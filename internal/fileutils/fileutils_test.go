package fileutils_test

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fjacquet/statement-ingest/internal/fileutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOpaque(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"/tmp/statement.pdf", false},
		{"statement.csv", false},
		{"file:///tmp/statement.pdf", false},
		{"content://com.android.providers.downloads/document/42", true},
		{"ph://ABC-123", true},
		{`C://Users/me/statement.pdf`, false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, fileutils.IsOpaque(tt.uri))
		})
	}
}

func TestLocalPathAndDisplayName(t *testing.T) {
	p, err := fileutils.LocalPath("file:///tmp/a%20b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a b.pdf", p)

	_, err = fileutils.LocalPath("content://docs/1")
	assert.ErrorIs(t, err, fileutils.ErrOpaqueURI)

	assert.Equal(t, "May 2025.csv", fileutils.DisplayName("content://docs/statements/May%202025.csv"))
}

func setupLocalFS(t *testing.T) (*fileutils.LocalFS, string, string) {
	t.Helper()
	root := t.TempDir()
	work := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bank", "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bank", "docs", "march.csv"), []byte("a,b\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(work, "local.csv"), []byte("x,y\n"), 0o600))
	return fileutils.NewLocalFS(root), root, work
}

func TestLocalFS_ReadLocal(t *testing.T) {
	lfs, _, work := setupLocalFS(t)
	ctx := context.Background()

	text, err := lfs.ReadAsText(ctx, filepath.Join(work, "local.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", text)

	b64, err := lfs.ReadAsBase64(ctx, "file://"+filepath.Join(work, "local.csv"))
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("x,y\n")), b64)

	info, err := lfs.Stat(ctx, filepath.Join(work, "local.csv"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)
	assert.Equal(t, "local.csv", info.Name)
	assert.Equal(t, "text/csv", info.MimeType)
}

func TestLocalFS_OpaqueURIMustBeCopied(t *testing.T) {
	lfs, _, work := setupLocalFS(t)
	ctx := context.Background()
	uri := "content://bank/docs/march.csv"

	_, err := lfs.ReadAsText(ctx, uri)
	assert.ErrorIs(t, err, fileutils.ErrOpaqueURI)

	info, err := lfs.Stat(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "march.csv", info.Name)

	dst := filepath.Join(work, "copy.csv")
	require.NoError(t, lfs.Copy(ctx, uri, dst))
	text, err := lfs.ReadAsText(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", text)

	require.NoError(t, lfs.Delete(ctx, dst))
	require.NoError(t, lfs.Delete(ctx, dst), "deleting twice is not an error")
	_, err = os.Stat(dst)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalFS_ContentURICannotEscapeRoot(t *testing.T) {
	lfs, _, work := setupLocalFS(t)
	err := lfs.Copy(context.Background(), "content://../../etc/passwd", filepath.Join(work, "x"))
	assert.Error(t, err)
}

func TestLocalFS_CopyCancelledLeavesNoFile(t *testing.T) {
	lfs, _, work := setupLocalFS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dst := filepath.Join(work, "cancelled.csv")
	err := lfs.Copy(ctx, "content://bank/docs/march.csv", dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(dst)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestMemFS(t *testing.T) {
	m := fileutils.NewMemFS()
	ctx := context.Background()
	m.Put("content://docs/1", []byte("hello"))

	_, err := m.ReadAsText(ctx, "content://docs/1")
	assert.ErrorIs(t, err, fileutils.ErrOpaqueURI)

	require.NoError(t, m.Copy(ctx, "content://docs/1", "/tmp/1"))
	text, err := m.ReadAsText(ctx, "/tmp/1")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	require.NoError(t, m.Delete(ctx, "/tmp/1"))
	assert.Equal(t, []string{"/tmp/1"}, m.Deleted())
	assert.Equal(t, []string{"content://docs/1"}, m.URIs())
}
