package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/repository"
	"github.com/vedran77/hadra/internal/storage"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidCreds = errors.New("invalid email or password")
	ErrInvalidToken = errors.New("invalid or expired session token")
)

// AuthService owns the single active session of this process. The session
// slot only stores a signed token; the user itself is always read back from
// the directory, so there is never a second copy of a user to keep in sync.
type AuthService struct {
	users      *UserService
	userRepo   repository.UserRepository
	sessions   repository.SessionRepository
	jwtSecret  []byte
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	// mu serialises session operations; state is readable without it.
	mu     sync.Mutex
	state  atomic.Int32
	userID string
	token  string
}

func NewAuthService(
	userRepo repository.UserRepository,
	sessions repository.SessionRepository,
	jwtSecret string,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:      NewUserService(userRepo),
		userRepo:   userRepo,
		sessions:   sessions,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

type RegisterInput struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

type demoUser struct {
	id          string
	email       string
	password    string
	displayName string
	friends     []string
}

var demoUsers = []demoUser{
	{id: "1", email: "user@example.com", password: "password123", displayName: "PixelUser", friends: []string{"2"}},
	{id: "2", email: "demo@example.com", password: "demo123", displayName: "CryptoFan", friends: []string{"1"}},
}

// Startup seeds the demo accounts and restores a persisted session if there
// is a usable one. A corrupt or stale session slot is discarded, not returned.
func (s *AuthService) Startup(ctx context.Context) error {
	if err := s.SeedDefaultUsers(ctx); err != nil {
		return err
	}
	return s.restore(ctx)
}

// SeedDefaultUsers inserts each demo account whose email is not yet taken.
func (s *AuthService) SeedDefaultUsers(ctx context.Context) error {
	for _, d := range demoUsers {
		existing, err := s.userRepo.GetByEmail(ctx, d.email)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		hash, err := hashPassword(d.password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		user := &domain.User{
			ID:           d.id,
			Email:        d.email,
			PasswordHash: hash,
			DisplayName:  d.displayName,
			LastLogin:    s.now(),
			Friends:      slices.Clone(d.friends),
		}
		if err := s.userRepo.Save(ctx, user); err != nil {
			return fmt.Errorf("seeding %s: %w", d.email, err)
		}
		s.logger.Info("seeded demo user", "email", d.email)
	}
	return nil
}

func (s *AuthService) restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.sessions.Get(ctx)
	if errors.Is(err, storage.ErrCorruptRecord) {
		s.logger.Warn("discarding corrupt session", "error", err)
		return s.sessions.Clear(ctx)
	}
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if rec == nil {
		return nil
	}

	userID, err := s.parseToken(rec.Token)
	if err != nil {
		s.logger.Warn("discarding unusable session", "error", err)
		return s.sessions.Clear(ctx)
	}

	now := s.now()
	online := true
	user, err := s.userRepo.Update(ctx, userID, domain.UserPatch{LastLogin: &now, IsOnline: &online})
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if user == nil {
		s.logger.Warn("discarding session for unknown user", "user_id", userID)
		return s.sessions.Clear(ctx)
	}

	s.setSession(user.ID, rec.Token)
	s.logger.Info("session restored", "user_id", user.ID)
	return nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.State()
	s.state.Store(int32(domain.Authenticating))

	user, err := s.users.VerifyCredentials(ctx, input.Email, input.Password)
	if err != nil {
		s.state.Store(int32(prev))
		return nil, err
	}
	if user == nil {
		s.state.Store(int32(prev))
		s.logger.Info("login failed")
		return nil, ErrInvalidCreds
	}

	if s.userID != "" && s.userID != user.ID {
		if err := s.markOffline(ctx, s.userID); err != nil {
			s.state.Store(int32(prev))
			return nil, err
		}
	}

	now := s.now()
	online := true
	updated, err := s.userRepo.Update(ctx, user.ID, domain.UserPatch{LastLogin: &now, IsOnline: &online})
	if err != nil {
		s.state.Store(int32(prev))
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if updated == nil {
		s.state.Store(int32(prev))
		return nil, ErrUserNotFound
	}

	resp, err := s.establish(ctx, updated)
	if err != nil {
		s.state.Store(int32(prev))
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", updated.ID)
	return resp, nil
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.State()
	s.state.Store(int32(domain.Authenticating))
	fail := func(err error) (*AuthResponse, error) {
		s.state.Store(int32(prev))
		return nil, err
	}

	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		return fail(ErrEmailTaken)
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
		LastLogin:    s.now(),
		IsOnline:     true,
		Friends:      []string{},
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return fail(err)
	}
	// From here on the user exists; a failure must not leave it online without a session.
	failSaved := func(err error) (*AuthResponse, error) {
		if offErr := s.markOffline(ctx, user.ID); offErr != nil {
			s.logger.Error("marking new user offline", "user_id", user.ID, "error", offErr)
		}
		return fail(err)
	}

	if s.userID != "" {
		if err := s.markOffline(ctx, s.userID); err != nil {
			return failSaved(err)
		}
	}

	resp, err := s.establish(ctx, user)
	if err != nil {
		return failSaved(err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return resp, nil
}

// Logout ends the active session. It is a no-op when nobody is signed in.
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endSession(ctx)
}

// endSession marks the signed in user offline and clears the slot. Callers hold mu.
func (s *AuthService) endSession(ctx context.Context) error {
	if s.userID != "" {
		if err := s.markOffline(ctx, s.userID); err != nil {
			return err
		}
		s.logger.Info("user logged out", "user_id", s.userID)
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return err
	}
	s.setSession("", "")
	return nil
}

// UpdateProfile changes the signed in user's display name and avatar.
// It returns nil when nobody is signed in.
func (s *AuthService) UpdateProfile(ctx context.Context, input domain.ProfileUpdate) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		return nil, nil
	}
	user, err := s.userRepo.Update(ctx, s.userID, domain.UserPatch{
		DisplayName: input.DisplayName,
		Avatar:      input.Avatar,
	})
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	pub := user.Public()
	return &pub, nil
}

// AddFriend adds userID to the signed in user's friends. Adding yourself or
// an existing friend does nothing.
func (s *AuthService) AddFriend(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" || userID == s.userID {
		return nil
	}
	me, err := s.userRepo.GetByID(ctx, s.userID)
	if err != nil {
		return err
	}
	if me == nil {
		return ErrUserNotFound
	}
	if me.HasFriend(userID) {
		return nil
	}
	friend, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if friend == nil {
		return ErrUserNotFound
	}

	friends := append(slices.Clone(me.Friends), userID)
	if _, err := s.userRepo.Update(ctx, s.userID, domain.UserPatch{Friends: &friends}); err != nil {
		return fmt.Errorf("adding friend: %w", err)
	}
	return nil
}

// RemoveFriend drops userID from the signed in user's friends, if present.
func (s *AuthService) RemoveFriend(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		return nil
	}
	me, err := s.userRepo.GetByID(ctx, s.userID)
	if err != nil {
		return err
	}
	if me == nil || !me.HasFriend(userID) {
		return nil
	}

	friends := slices.DeleteFunc(slices.Clone(me.Friends), func(id string) bool { return id == userID })
	if _, err := s.userRepo.Update(ctx, s.userID, domain.UserPatch{Friends: &friends}); err != nil {
		return fmt.Errorf("removing friend: %w", err)
	}
	return nil
}

func (s *AuthService) IsFriend(ctx context.Context, userID string) (bool, error) {
	me, err := s.Current(ctx)
	if err != nil || me == nil {
		return false, err
	}
	return me.HasFriend(userID), nil
}

// GetFriends resolves the signed in user's friends. Ids that no longer
// resolve to a user are skipped.
func (s *AuthService) GetFriends(ctx context.Context) ([]domain.User, error) {
	me, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	friends := []domain.User{}
	if me == nil {
		return friends, nil
	}
	for _, id := range me.Friends {
		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			friends = append(friends, u.Public())
		}
	}
	return friends, nil
}

// Current returns the public view of the signed in user, or nil.
func (s *AuthService) Current(ctx context.Context) (*domain.User, error) {
	id := s.CurrentUserID()
	if id == "" {
		return nil, nil
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil || user == nil {
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}

func (s *AuthService) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Token is the bearer token of the active session, empty when signed out.
func (s *AuthService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *AuthService) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

func (s *AuthService) IsAuthenticated() bool {
	return s.State() == domain.Authenticated
}

// Authorize checks a bearer token against the active session and returns its
// user id. When the active session's own token has expired, the session is
// ended so the user is not left online behind a token nobody can use.
func (s *AuthService) Authorize(ctx context.Context, token string) (string, error) {
	userID, err := s.parseToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && s.token != "" && token == s.token {
			s.logger.Info("session expired", "user_id", s.userID)
			if endErr := s.endSession(ctx); endErr != nil {
				return "", fmt.Errorf("ending expired session: %w", endErr)
			}
		}
		return "", err
	}
	if s.token == "" || token != s.token || userID != s.userID {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthService) establish(ctx context.Context, user *domain.User) (*AuthResponse, error) {
	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	if err := s.sessions.Put(ctx, &domain.SessionRecord{Token: token, CreatedAt: s.now()}); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	s.setSession(user.ID, token)
	pub := user.Public()
	return &AuthResponse{User: &pub, AccessToken: token}, nil
}

func (s *AuthService) setSession(userID, token string) {
	s.userID = userID
	s.token = token
	if userID == "" {
		s.state.Store(int32(domain.Unauthenticated))
	} else {
		s.state.Store(int32(domain.Authenticated))
	}
}

func (s *AuthService) markOffline(ctx context.Context, userID string) error {
	now := s.now()
	offline := false
	if _, err := s.userRepo.Update(ctx, userID, domain.UserPatch{LastLogin: &now, IsOnline: &offline}); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

func (s *AuthService) generateToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"exp": now.Add(s.sessionTTL).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) parseToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
