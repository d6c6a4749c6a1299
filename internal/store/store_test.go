package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/cliprec/internal/config"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.yaml")
	s := NewFile(path)

	_, err := s.Get(ctx, "recordedAudio")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "recordedAudio", "data:audio/wav;base64,AAAA"))
	require.NoError(t, s.Set(ctx, "other", "x"))

	v, err := s.Get(ctx, "recordedAudio")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/wav;base64,AAAA", v)

	// a second instance sees the same file
	v, err = NewFile(path).Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	require.NoError(t, s.Set(ctx, "recordedAudio", "replaced"))
	v, err = s.Get(ctx, "recordedAudio")
	require.NoError(t, err)
	assert.Equal(t, "replaced", v)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not: a map"), 0644))

	_, err := NewFile(path).Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFile(filepath.Join(t.TempDir(), "s.yaml")).Set(ctx, "k", "v")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewRedisWithClient(client, config.RedisConfig{Addr: "mock"})

	mock.ExpectSet("recordedAudio", "data:audio/wav;base64,AAAA", 0).SetVal("OK")
	require.NoError(t, s.Set(ctx, "recordedAudio", "data:audio/wav;base64,AAAA"))

	mock.ExpectGet("recordedAudio").SetVal("data:audio/wav;base64,AAAA")
	v, err := s.Get(ctx, "recordedAudio")
	require.NoError(t, err)
	assert.Equal(t, "data:audio/wav;base64,AAAA", v)

	mock.ExpectGet("missing").RedisNil()
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectSet("recordedAudio", "v", 0).SetErr(errors.New("READONLY"))
	err = s.Set(ctx, "recordedAudio", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", "v"))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	boom := errors.New("quota exceeded")
	m.SetFailure(boom)
	assert.ErrorIs(t, m.Set(ctx, "k", "w"), boom)
	assert.Equal(t, 2, m.Sets())

	v, _ = m.Get(ctx, "k")
	assert.Equal(t, "v", v)
}

func TestNew(t *testing.T) {
	s, err := New(config.StorageConfig{Backend: "file", File: filepath.Join(t.TempDir(), "s.yaml")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = New(config.StorageConfig{Backend: "redis", Redis: config.RedisConfig{Addr: "localhost:6379"}})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	_, err = New(config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}
