package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
	"github.com/Devesh-22/expense-tracker-api/internal/repository/memory"
	"github.com/Devesh-22/expense-tracker-api/pkg/config"
	"github.com/Devesh-22/expense-tracker-api/pkg/crypto"
	jwtpkg "github.com/Devesh-22/expense-tracker-api/pkg/jwt"
)

const testSecret = "test-signing-secret"

type userRepoStub struct {
	createFunc        func(ctx context.Context, user *domain.User) error
	getByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
	getByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	renameFunc        func(ctx context.Context, id, username string) (*domain.User, error)
	setHashFunc       func(ctx context.Context, id string, hash []byte) error
}

func (s userRepoStub) CreateUser(ctx context.Context, user *domain.User) error {
	if s.createFunc != nil {
		return s.createFunc(ctx, user)
	}
	return nil
}

func (s userRepoStub) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if s.getByUsernameFunc != nil {
		return s.getByUsernameFunc(ctx, username)
	}
	return nil, repository.ErrNotFound
}

func (s userRepoStub) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if s.getByIDFunc != nil {
		return s.getByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (s userRepoStub) UpdateUsername(ctx context.Context, id, username string, _ time.Time) (*domain.User, error) {
	if s.renameFunc != nil {
		return s.renameFunc(ctx, id, username)
	}
	return nil, repository.ErrNotFound
}

func (s userRepoStub) UpdatePasswordHash(ctx context.Context, id string, hash []byte, _ time.Time) error {
	if s.setHashFunc != nil {
		return s.setHashFunc(ctx, id, hash)
	}
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIssuer(t *testing.T) *jwtpkg.Issuer {
	t.Helper()
	issuer, err := jwtpkg.NewIssuer(testSecret)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func newService(t *testing.T, users repository.UserRepository) Service {
	t.Helper()
	return New(users, crypto.NewHasher(4), newIssuer(t), newLogger(), config.APIConfig{StoreTimeout: time.Second})
}

func TestRegisterStoresHashNotPlaintext(t *testing.T) {
	repo := memory.New()
	svc := newService(t, repo)

	user, err := svc.Register(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	stored, err := repo.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("load stored user: %v", err)
	}
	if string(stored.PasswordHash) == "pw1" || len(stored.PasswordHash) == 0 {
		t.Fatalf("expected bcrypt hash, got %q", stored.PasswordHash)
	}
	if !strings.HasPrefix(string(stored.PasswordHash), "$2") {
		t.Fatalf("expected bcrypt prefix, got %q", stored.PasswordHash)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	svc := newService(t, memory.New())
	cases := []struct{ username, password string }{
		{"", "pw"},
		{"alice", ""},
		{"   ", "pw"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.username, tc.password); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("register(%q, %q): expected ErrInvalidInput, got %v", tc.username, tc.password, err)
		}
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc := newService(t, memory.New())
	if _, err := svc.Register(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "other"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegisterMapsStoreConflict(t *testing.T) {
	users := userRepoStub{
		createFunc: func(context.Context, *domain.User) error { return repository.ErrConflict },
	}
	svc := newService(t, users)
	if _, err := svc.Register(context.Background(), "alice", "pw1"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	svc := newService(t, memory.New())
	if _, err := svc.Register(context.Background(), "alice", strings.Repeat("x", 73)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginIssuesTokenForUser(t *testing.T) {
	svc := newService(t, memory.New())
	registered, err := svc.Register(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, user, err := svc.Login(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
	}
	identity, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if identity.UserID != registered.ID || identity.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc := newService(t, memory.New())
	if _, err := svc.Register(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, wrongPassword := svc.Login(context.Background(), "alice", "nope")
	_, _, unknownUser := svc.Login(context.Background(), "bob", "pw1")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v and %v", wrongPassword, unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("expected identical errors, got %q and %q", wrongPassword, unknownUser)
	}
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	storeErr := errors.New("connection reset")
	users := userRepoStub{
		getByUsernameFunc: func(context.Context, string) (*domain.User, error) { return nil, storeErr },
	}
	svc := newService(t, users)
	_, _, err := svc.Login(context.Background(), "alice", "pw1")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

func TestStoreCallsAreBounded(t *testing.T) {
	users := userRepoStub{
		getByUsernameFunc: func(ctx context.Context, _ string) (*domain.User, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := New(users, crypto.NewHasher(4), newIssuer(t), newLogger(), config.APIConfig{StoreTimeout: 20 * time.Millisecond})

	_, _, err := svc.Login(context.Background(), "alice", "pw1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	svc := newService(t, memory.New())
	foreign, err := jwtpkg.NewIssuer("another-secret")
	if err != nil {
		t.Fatalf("foreign issuer: %v", err)
	}
	foreignToken, err := foreign.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("foreign token: %v", err)
	}

	for _, token := range []string{"", "   ", "not-a-token", foreignToken} {
		if _, err := svc.Authorize(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("authorize(%q): expected ErrUnauthenticated, got %v", token, err)
		}
	}
}

func TestAuthorizeDoesNotConsultStore(t *testing.T) {
	users := userRepoStub{
		getByIDFunc: func(context.Context, string) (*domain.User, error) {
			t.Fatalf("authorize must not load the user")
			return nil, nil
		},
	}
	svc := newService(t, users)
	token, err := newIssuer(t).Issue("ghost", "ghost")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identity, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if identity.UserID != "ghost" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestProfileUnknownUser(t *testing.T) {
	svc := newService(t, memory.New())
	if _, err := svc.Profile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateUsername(t *testing.T) {
	svc := newService(t, memory.New())
	alice, err := svc.Register(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", "pw2"); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if _, err := svc.UpdateUsername(context.Background(), alice.ID, "bob"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if _, err := svc.UpdateUsername(context.Background(), alice.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	same, err := svc.UpdateUsername(context.Background(), alice.ID, "alice")
	if err != nil {
		t.Fatalf("rename to own username: %v", err)
	}
	if same.Username != "alice" {
		t.Fatalf("unexpected username: %s", same.Username)
	}

	renamed, err := svc.UpdateUsername(context.Background(), alice.ID, "alicia")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Username != "alicia" || renamed.ID != alice.ID {
		t.Fatalf("unexpected renamed user: %+v", renamed)
	}
	if _, _, err := svc.Login(context.Background(), "alicia", "pw1"); err != nil {
		t.Fatalf("login with new username: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old username to stop working, got %v", err)
	}
}

func TestUpdateUsernameUnknownUser(t *testing.T) {
	svc := newService(t, memory.New())
	if _, err := svc.UpdateUsername(context.Background(), "missing", "carol"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newService(t, memory.New())
	user, err := svc.Register(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong", "pw2"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "pw1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), "missing", "pw1", "pw2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "pw1", "pw2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "pw2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
