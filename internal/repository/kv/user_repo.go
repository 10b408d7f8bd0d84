package kv

import (
	"context"
	"slices"
	"strings"

	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/repository"
	"github.com/vedran77/hadra/internal/storage"
)

type UserRepo struct {
	store *storage.Store
}

func NewUserRepo(store *storage.Store) *UserRepo {
	return &UserRepo{store: store}
}

// Save upserts by id. On an existing record, empty strings, a nil avatar, a zero
// last login and nil friends count as omitted and keep the stored value.
// IsOnline always takes the incoming value.
func (r *UserRepo) Save(ctx context.Context, user *domain.User) error {
	return r.store.Update(ctx, func(tx *storage.Tx) error {
		users, err := tx.Users()
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == user.ID })
		if idx < 0 {
			if emailTaken(users, user.Email, user.ID) {
				return repository.ErrDuplicateEmail
			}
			users = append(users, normalise(*user))
			return tx.PutUsers(users)
		}

		patch := patchFromUser(*user)
		if patch.Email != nil && emailTaken(users, *patch.Email, user.ID) {
			return repository.ErrDuplicateEmail
		}
		users[idx] = normalise(patch.Apply(users[idx]))
		return tx.PutUsers(users)
	})
}

func (r *UserRepo) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	var updated *domain.User
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		users, err := tx.Users()
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == id })
		if idx < 0 {
			return nil
		}
		if patch.Email != nil && emailTaken(users, *patch.Email, id) {
			return repository.ErrDuplicateEmail
		}
		users[idx] = normalise(patch.Apply(users[idx]))
		if err := tx.PutUsers(users); err != nil {
			return err
		}
		u := users[idx]
		updated = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.find(ctx, func(u domain.User) bool { return u.ID == id })
}

// GetByEmail matches case-sensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(ctx, func(u domain.User) bool { return u.Email == email })
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		users, err = tx.Users()
		return err
	})
	return users, err
}

// Search matches display names case-insensitively. An empty query returns everyone.
func (r *UserRepo) Search(ctx context.Context, query string) ([]domain.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return users, nil
	}
	matches := []domain.User{}
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.DisplayName), query) {
			matches = append(matches, u)
		}
	}
	return matches, nil
}

func (r *UserRepo) find(ctx context.Context, match func(domain.User) bool) (*domain.User, error) {
	var found *domain.User
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		users, err := tx.Users()
		if err != nil {
			return err
		}
		if idx := slices.IndexFunc(users, match); idx >= 0 {
			u := users[idx]
			found = &u
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func emailTaken(users []domain.User, email, exceptID string) bool {
	return slices.ContainsFunc(users, func(u domain.User) bool {
		return u.Email == email && u.ID != exceptID
	})
}

func normalise(u domain.User) domain.User {
	if u.Friends == nil {
		u.Friends = []string{}
	}
	u.Friends = withoutSelf(u.Friends, u.ID)
	return u
}

func patchFromUser(u domain.User) domain.UserPatch {
	patch := domain.UserPatch{IsOnline: &u.IsOnline, Avatar: u.Avatar}
	if u.Email != "" {
		patch.Email = &u.Email
	}
	if u.PasswordHash != "" {
		patch.PasswordHash = &u.PasswordHash
	}
	if u.DisplayName != "" {
		patch.DisplayName = &u.DisplayName
	}
	if !u.LastLogin.IsZero() {
		patch.LastLogin = &u.LastLogin
	}
	if u.Friends != nil {
		patch.Friends = &u.Friends
	}
	return patch
}

func withoutSelf(friends []string, self string) []string {
	out := make([]string, 0, len(friends))
	for _, id := range friends {
		if id != self && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
