package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hadra/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := New(NewMemoryBackend(), nil)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

type backendFactory func(t *testing.T) Backend

func backends(t *testing.T) map[string]backendFactory {
	t.Helper()

	factories := map[string]backendFactory{
		"memory": func(t *testing.T) Backend { return NewMemoryBackend() },
		"file": func(t *testing.T) Backend {
			b, err := NewFileBackend(t.TempDir())
			require.NoError(t, err)
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, _, err := OpenSQLite(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
	if dsn := os.Getenv("HADRA_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) Backend {
			ctx := context.Background()
			pool, err := pgxpool.New(ctx, dsn)
			require.NoError(t, err)
			b, err := NewPostgresBackend(ctx, pool)
			require.NoError(t, err)
			for _, key := range []string{UsersKey, MessagesKey, SessionKey} {
				require.NoError(t, b.Delete(ctx, key))
			}
			t.Cleanup(func() { _ = b.Close() })
			return b
		}
	}
	return factories
}

func TestBackendContract(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := factory(t)

			_, ok, err := b.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Put(ctx, "k", []byte(`[1]`)))
			require.NoError(t, b.Put(ctx, "k", []byte(`[1,2]`)))
			got, ok, err := b.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `[1,2]`, string(got))

			require.NoError(t, b.Delete(ctx, "k"))
			require.NoError(t, b.Delete(ctx, "k"))
			_, ok, err = b.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestInitCreatesEmptyCollections(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := New(backend, nil)
	require.NoError(t, store.Init(ctx))

	for _, key := range []string{UsersKey, MessagesKey} {
		data, ok, err := backend.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.Equal(t, "[]", string(data))
	}

	// Existing data survives a second Init.
	require.NoError(t, backend.Put(ctx, UsersKey, []byte(`[{"id":"1"}]`)))
	require.NoError(t, store.Init(ctx))
	data, _, _ := backend.Get(ctx, UsersKey)
	assert.Equal(t, `[{"id":"1"}]`, string(data))
}

func TestUsersRoundTripKeepsPasswordHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	login := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := store.Update(ctx, func(tx *Tx) error {
		return tx.PutUsers([]domain.User{{
			ID:           "1",
			Email:        "a@example.com",
			PasswordHash: "salt:hash",
			DisplayName:  "Alice",
			LastLogin:    login,
		}})
	})
	require.NoError(t, err)

	var users []domain.User
	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		var err error
		users, err = tx.Users()
		return err
	}))
	require.Len(t, users, 1)
	assert.Equal(t, "salt:hash", users[0].PasswordHash)
	assert.True(t, users[0].LastLogin.Equal(login))
	assert.Equal(t, []string{}, users[0].Friends)
}

func TestViewIsReadOnly(t *testing.T) {
	store := newTestStore(t)
	err := store.View(context.Background(), func(tx *Tx) error {
		return tx.PutMessages(nil)
	})
	assert.ErrorIs(t, err, ErrReadOnly)

	err = store.View(context.Background(), func(tx *Tx) error {
		return tx.ClearSession()
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestCorruptCollection(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, MessagesKey, []byte(`{not json`)))
	store := New(backend, nil)

	err := store.View(ctx, func(tx *Tx) error {
		_, err := tx.Messages()
		return err
	})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestSessionSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(tx *Tx) error {
		return tx.PutSession([]byte(`{"token":"t"}`))
	}))
	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		data, ok, err := tx.Session()
		require.True(t, ok)
		assert.JSONEq(t, `{"token":"t"}`, string(data))
		return err
	}))

	require.NoError(t, store.Update(ctx, func(tx *Tx) error { return tx.ClearSession() }))
	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		_, ok, err := tx.Session()
		assert.False(t, ok)
		return err
	}))
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(tx *Tx) error {
		if err := tx.PutMessages([]domain.Message{{ID: "m1"}}); err != nil {
			return err
		}
		return tx.PutSession([]byte(`{"token":"t"}`))
	}))
	require.NoError(t, store.Reset(ctx))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		messages, err := tx.Messages()
		require.NoError(t, err)
		assert.Empty(t, messages)
		_, ok, err := tx.Session()
		assert.False(t, ok)
		return err
	}))
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, func(tx *Tx) error {
				messages, err := tx.Messages()
				if err != nil {
					return err
				}
				return tx.PutMessages(append(messages, domain.Message{ID: fmt.Sprintf("m%d", i)}))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		messages, err := tx.Messages()
		assert.Len(t, messages, writers)
		return err
	}))
}

func TestFileBackendPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, UsersKey, []byte(`[]`)))

	reopened, err := NewFileBackend(dir)
	require.NoError(t, err)
	data, ok, err := reopened.Get(ctx, UsersKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be renamed away")
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	b, path, err := OpenSQLite(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	again, err := OpenSQLitePath(path)
	require.NoError(t, err)
	defer again.Close()
	got, ok, err := again.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
}
