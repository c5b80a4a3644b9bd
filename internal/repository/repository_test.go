package repository

import (
	"context"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"testing"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"docregistry/internal/query"
	"docregistry/internal/storage"
	"docregistry/migrations"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (s *memoryStorage) UploadBytes(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStorage) GetObject(_ context.Context, key string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return memoryObject{Reader: strings.NewReader(string(data)), size: int64(len(data))}, nil
}

func (s *memoryStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type memoryObject struct {
	io.Reader
	size int64
}

func (o memoryObject) Close() error         { return nil }
func (o memoryObject) ContentLength() int64 { return o.size }
func (o memoryObject) ContentType() string  { return "application/octet-stream" }

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	files, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	sort.Strings(files)

	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			_, err := db.Exec(stmt)
			require.NoError(t, err, name)
		}
	}
	return db
}

func newTestBackend(t *testing.T) (*Backend, *memoryStorage) {
	t.Helper()
	content := newMemoryStorage()
	return NewBackend(newTestDB(t), content, Options{
		Resolver: query.URLResolver{HostURL: "http://testserver"},
	}), content
}
