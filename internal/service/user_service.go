package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

// UserService is the user directory.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// SaveUser upserts user by id.
func (s *UserService) SaveUser(ctx context.Context, user *domain.User) error {
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

func (s *UserService) GetUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.userRepo.GetByEmail(ctx, email)
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	return s.userRepo.Search(ctx, query)
}

// VerifyCredentials returns the user when email and password match, and nil
// otherwise. An unknown email and a wrong password look the same to the caller.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		verifyPassword(password, dummyHash)
		return nil, nil
	}
	if !verifyPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}
