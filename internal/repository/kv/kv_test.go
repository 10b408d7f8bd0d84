package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/hadra/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store := storage.New(storage.NewMemoryBackend(), nil)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func ptr[T any](v T) *T {
	return &v
}
