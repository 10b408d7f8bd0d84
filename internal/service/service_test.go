package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/repository"
	"github.com/vedran77/hadra/internal/repository/kv"
	"github.com/vedran77/hadra/internal/storage"
)

const testSecret = "test-secret"

// testClock ticks one second on every read so consecutive events are ordered.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    *storage.Store
	userRepo *kv.UserRepo
	msgRepo  *kv.MessageRepo
	auth     *AuthService
	messages *MessageService
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.New(storage.NewMemoryBackend(), discardLogger())
	require.NoError(t, store.Init(context.Background()))
	f := &fixture{store: store, clock: newTestClock()}
	f.restart(t)
	return f
}

// restart builds fresh services over the same store and runs startup, like a new process would.
func (f *fixture) restart(t *testing.T) {
	t.Helper()
	f.restartWithSecret(t, testSecret)
}

func (f *fixture) restartWithSecret(t *testing.T, secret string) {
	t.Helper()

	f.userRepo = kv.NewUserRepo(f.store)
	f.msgRepo = kv.NewMessageRepo(f.store)
	f.auth = NewAuthService(f.userRepo, kv.NewSessionRepo(f.store), secret, 24*time.Hour, discardLogger())
	f.auth.now = f.clock.Now
	f.messages = NewMessageService(f.msgRepo, f.userRepo, f.auth, time.Second, discardLogger())
	f.messages.now = f.clock.Now
	require.NoError(t, f.auth.Startup(context.Background()))
}

func (f *fixture) login(t *testing.T, email, password string) *AuthResponse {
	t.Helper()
	resp, err := f.auth.Login(context.Background(), LoginInput{Email: email, Password: password})
	require.NoError(t, err)
	return resp
}

func (f *fixture) messageCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.View(context.Background(), func(tx *storage.Tx) error {
		messages, err := tx.Messages()
		n = len(messages)
		return err
	}))
	return n
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.userRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

var errSessionWrite = errors.New("session slot unavailable")

// failingSessions refuses to persist a session.
type failingSessions struct {
	repository.SessionRepository
}

func (failingSessions) Put(context.Context, *domain.SessionRecord) error {
	return errSessionWrite
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T {
	return &v
}
