package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
	"github.com/Devesh-22/expense-tracker-api/pkg/config"
	"github.com/Devesh-22/expense-tracker-api/pkg/crypto"
	jwtpkg "github.com/Devesh-22/expense-tracker-api/pkg/jwt"
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plain string) ([]byte, error)
	Verify(plain string, hash []byte) bool
}

// TokenIssuer mints and checks session tokens.
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
	Verify(token string) (*jwtpkg.Claims, error)
}

// Identity is the verified caller attached to authenticated requests.
type Identity struct {
	UserID   string
	Username string
}

// Service handles registration, login and credential maintenance.
type Service struct {
	users   repository.UserRepository
	hasher  Hasher
	tokens  TokenIssuer
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	decoy   *decoyHash
}

// New constructs a Service.
func New(users repository.UserRepository, hasher Hasher, tokens TokenIssuer, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		logger:  logger,
		timeout: cfg.StoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		decoy:   &decoyHash{},
	}
}

// Register creates an account for username with a freshly hashed password.
func (s Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if _, err := s.findByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.CreateUser(storeCtx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and returns a signed token. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s Service) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	user, err := s.findByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.decoy.get(s.hasher))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("auth: issue token: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

// Authorize validates a bearer token. It does not consult the store: a
// well-signed token stays valid even if its user has since disappeared.
func (s Service) Authorize(_ context.Context, token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, fmt.Errorf("%w: token required", ErrUnauthenticated)
	}
	claims, err := s.tokens.Verify(trimmed)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// Profile returns the user identified by userID.
func (s Service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.GetUserByID(storeCtx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return user, nil
}

// UpdateUsername renames userID. Renaming to the caller's current username
// succeeds without a write.
func (s Service) UpdateUsername(ctx context.Context, userID, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	existing, err := s.findByUsername(ctx, username)
	switch {
	case err == nil && existing.ID != userID:
		return nil, ErrDuplicateUsername
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.UpdateUsername(storeCtx, userID, username, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrDuplicateUsername
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: update username: %w", err)
	}
	s.logger.Info("username updated", "user_id", user.ID)
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new passwords are required", ErrInvalidInput)
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return ErrIncorrectPassword
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.storeHash(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", userID)
	return nil
}

func (s Service) storeHash(ctx context.Context, userID string, hash []byte) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.UpdatePasswordHash(storeCtx, userID, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("auth: update password: %w", err)
	}
	return nil
}

func (s Service) findByUsername(ctx context.Context, username string) (*domain.User, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.GetUserByUsername(storeCtx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("auth: lookup username: %w", err)
	}
	return user, err
}

func (s Service) hash(password string) ([]byte, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return hash, nil
}

func (s Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// decoyHash keeps failed lookups as slow as failed password checks.
type decoyHash struct {
	once sync.Once
	hash []byte
}

func (d *decoyHash) get(h Hasher) []byte {
	d.once.Do(func() {
		d.hash, _ = h.Hash(uuid.NewString())
	})
	return d.hash
}
