// Package storage is the durable key-value layer behind the user directory,
// the message log and the session slot.
//
// Collections are stored whole: a read returns the full sequence and a write
// replaces it. Every logical operation runs inside Update or View, which hold
// the store lock for the duration, so read-modify-write cycles never interleave.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vedran77/hadra/internal/domain"
)

const (
	UsersKey    = "pixel_talk_users"
	MessagesKey = "pixel_talk_messages"
	SessionKey  = "user"
)

var (
	ErrCorruptRecord = errors.New("storage: corrupt record")
	ErrReadOnly      = errors.New("storage: write in read-only transaction")
)

// Backend is a durable byte store addressed by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Store struct {
	backend Backend
	logger  *slog.Logger
	mu      sync.RWMutex
}

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Init creates the users and messages collections if they are absent.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Store) initLocked(ctx context.Context) error {
	for _, key := range []string{UsersKey, MessagesKey} {
		_, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if ok {
			continue
		}
		if err := s.backend.Put(ctx, key, []byte("[]")); err != nil {
			return fmt.Errorf("initialising %s: %w", key, err)
		}
		s.logger.Debug("initialised collection", "key", key)
	}
	return nil
}

// Update runs fn with exclusive access to the store.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{ctx: ctx, backend: s.backend, writable: true})
}

// View runs fn with shared read access to the store.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{ctx: ctx, backend: s.backend})
}

// Reset deletes every collection and the session slot, then re-creates empty collections.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{UsersKey, MessagesKey, SessionKey} {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	s.logger.Info("store reset")
	return s.initLocked(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Tx is the view of the store handed to Update and View callbacks.
type Tx struct {
	ctx      context.Context
	backend  Backend
	writable bool
}

type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	DisplayName  string    `json:"display_name"`
	Avatar       *string   `json:"avatar,omitempty"`
	LastLogin    time.Time `json:"last_login"`
	IsOnline     bool      `json:"is_online"`
	Friends      []string  `json:"friends"`
}

func (r userRecord) toDomain() domain.User {
	friends := r.Friends
	if friends == nil {
		friends = []string{}
	}
	return domain.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		DisplayName:  r.DisplayName,
		Avatar:       r.Avatar,
		LastLogin:    r.LastLogin,
		IsOnline:     r.IsOnline,
		Friends:      friends,
	}
}

func fromDomain(u domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Avatar:       u.Avatar,
		LastLogin:    u.LastLogin,
		IsOnline:     u.IsOnline,
		Friends:      u.Friends,
	}
}

func (tx *Tx) Users() ([]domain.User, error) {
	records, err := readCollection[userRecord](tx, UsersKey)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(records))
	for _, r := range records {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (tx *Tx) PutUsers(users []domain.User) error {
	records := make([]userRecord, 0, len(users))
	for _, u := range users {
		records = append(records, fromDomain(u))
	}
	return writeCollection(tx, UsersKey, records)
}

// Messages returns the message log in insertion order.
func (tx *Tx) Messages() ([]domain.Message, error) {
	return readCollection[domain.Message](tx, MessagesKey)
}

func (tx *Tx) PutMessages(messages []domain.Message) error {
	return writeCollection(tx, MessagesKey, messages)
}

// Session returns the raw session slot, if one is set.
func (tx *Tx) Session() ([]byte, bool, error) {
	data, ok, err := tx.backend.Get(tx.ctx, SessionKey)
	if err != nil {
		return nil, false, fmt.Errorf("reading session: %w", err)
	}
	return data, ok, nil
}

func (tx *Tx) PutSession(data []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.backend.Put(tx.ctx, SessionKey, data); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (tx *Tx) ClearSession() error {
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.backend.Delete(tx.ctx, SessionKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func readCollection[T any](tx *Tx, key string) ([]T, error) {
	data, ok, err := tx.backend.Get(tx.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func writeCollection[T any](tx *Tx, key string, items []T) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := tx.backend.Put(tx.ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
