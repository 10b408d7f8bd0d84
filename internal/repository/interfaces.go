package repository

import (
	"context"
	"errors"

	"github.com/vedran77/hadra/internal/domain"
)

var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository is the user directory. Lookups return (nil, nil) when nothing matches.
type UserRepository interface {
	// Save inserts user, or merges it over the record with the same id.
	Save(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Search(ctx context.Context, query string) ([]domain.User, error)
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListConversation(ctx context.Context, userA, userB string) ([]domain.Message, error)
	ListByParticipant(ctx context.Context, userID string) ([]domain.Message, error)
	ListStories(ctx context.Context, authorIDs ...string) ([]domain.Message, error)
}

// SessionRepository is the single "current session" slot.
type SessionRepository interface {
	Get(ctx context.Context) (*domain.SessionRecord, error)
	Put(ctx context.Context, rec *domain.SessionRecord) error
	Clear(ctx context.Context) error
}
