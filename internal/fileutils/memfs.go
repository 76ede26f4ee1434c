package fileutils

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"sort"
	"sync"
)

// MemFS is an in-memory FileSystem for tests. Every URI, opaque or not, is a
// key in the same map; direct reads of opaque URIs fail like LocalFS.
type MemFS struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string

	// CopyHook, when set, runs after a copy wrote its destination and
	// can fail it, e.g. to simulate cancellation mid-transfer.
	CopyHook func(ctx context.Context, from, to string) error
}

// NewMemFS returns an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

// Put stores data under uri.
func (m *MemFS) Put(uri string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[uri] = append([]byte(nil), data...)
}

// Exists reports whether uri is stored.
func (m *MemFS) Exists(uri string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[uri]
	return ok
}

// URIs lists stored URIs in sorted order.
func (m *MemFS) URIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for uri := range m.files {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Deleted lists every URI passed to Delete, in call order.
func (m *MemFS) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *MemFS) Stat(ctx context.Context, uri string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[uri]
	if !ok {
		return Info{}, fmt.Errorf("stat %s: %w", uri, fs.ErrNotExist)
	}
	return Info{URI: uri, Name: DisplayName(uri), Size: int64(len(data))}, nil
}

func (m *MemFS) ReadAsText(ctx context.Context, uri string) (string, error) {
	data, err := m.read(ctx, uri)
	return string(data), err
}

func (m *MemFS) ReadAsBase64(ctx context.Context, uri string) (string, error) {
	data, err := m.read(ctx, uri)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (m *MemFS) read(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if IsOpaque(uri) {
		return nil, fmt.Errorf("%s: %w", uri, ErrOpaqueURI)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[uri]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", uri, fs.ErrNotExist)
	}
	return data, nil
}

func (m *MemFS) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	data, ok := m.files[from]
	if ok {
		m.files[to] = append([]byte(nil), data...)
	}
	hook := m.CopyHook
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("copy %s: %w", from, fs.ErrNotExist)
	}
	if hook != nil {
		return hook(ctx, from, to)
	}
	return nil
}

func (m *MemFS) Delete(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, uri)
	delete(m.files, uri)
	return nil
}
