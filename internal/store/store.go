// Package store persists the most recent clip in a single key-value slot.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/audiolibrelab/cliprec/internal/config"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Store is a string key-value slot.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Close() error
}

// New builds the store selected by cfg.Backend.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFile(cfg.File), nil
	case "redis":
		return NewRedis(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Memory keeps values in process. Setting Fail makes every Set fail.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	Fail   error
	sets   int
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.Fail != nil {
		return m.Fail
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetFailure changes the failure returned by Set.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.Fail = err
	m.mu.Unlock()
}

// Sets counts Set calls, including failed ones.
func (m *Memory) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func (m *Memory) Close() error { return nil }
