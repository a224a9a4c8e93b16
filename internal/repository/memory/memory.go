// Package memory provides a process-local store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
)

// Repository keeps users and expenses in maps guarded by a single lock.
type Repository struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	usernames  map[string]string
	expenses   map[string]domain.Expense
	expenseIDs map[string][]string
}

var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ExpenseRepository = (*Repository)(nil)
)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		users:      make(map[string]domain.User),
		usernames:  make(map[string]string),
		expenses:   make(map[string]domain.Expense),
		expenseIDs: make(map[string][]string),
	}
}

// Ping always succeeds; it mirrors the database health probe.
func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// CreateUser inserts a user, rejecting taken usernames.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.usernames[user.Username]; taken {
		return repository.ErrConflict
	}
	if _, exists := r.users[user.ID]; exists {
		return repository.ErrConflict
	}
	r.users[user.ID] = cloneUser(*user)
	r.usernames[user.Username] = user.ID
	return nil
}

// GetUserByUsername fetches a user by exact username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usernames[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := cloneUser(r.users[id])
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

// UpdateUsername renames a user while holding the uniqueness index.
func (r *Repository) UpdateUsername(ctx context.Context, id, username string, updatedAt time.Time) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if owner, taken := r.usernames[username]; taken && owner != id {
		return nil, repository.ErrConflict
	}
	delete(r.usernames, u.Username)
	u.Username = username
	u.UpdatedAt = updatedAt
	r.users[id] = u
	r.usernames[username] = id
	out := cloneUser(u)
	return &out, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = append([]byte(nil), hash...)
	u.UpdatedAt = updatedAt
	r.users[id] = u
	return nil
}

// CreateExpense inserts an expense.
func (r *Repository) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[expense.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, exists := r.expenses[expense.ID]; exists {
		return repository.ErrConflict
	}
	r.expenses[expense.ID] = *expense
	r.expenseIDs[expense.UserID] = append(r.expenseIDs[expense.UserID], expense.ID)
	return nil
}

// ListExpensesByOwner returns a snapshot of the owner's expenses.
func (r *Repository) ListExpensesByOwner(ctx context.Context, userID string) ([]domain.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.expenseIDs[userID]
	out := make([]domain.Expense, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.expenses[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// UpdateOwnedExpense applies changes when id and owner both match.
func (r *Repository) UpdateOwnedExpense(ctx context.Context, userID, id string, changes domain.ExpenseChanges, updatedAt time.Time) (*domain.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	expense, ok := r.expenses[id]
	if !ok || expense.UserID != userID {
		return nil, repository.ErrNotFound
	}
	changes.Apply(&expense)
	expense.UpdatedAt = updatedAt
	r.expenses[id] = expense
	return &expense, nil
}

// DeleteOwnedExpense removes and returns the expense when id and owner both match.
func (r *Repository) DeleteOwnedExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	expense, ok := r.expenses[id]
	if !ok || expense.UserID != userID {
		return nil, repository.ErrNotFound
	}
	delete(r.expenses, id)
	ids := r.expenseIDs[userID]
	for i, candidate := range ids {
		if candidate == id {
			r.expenseIDs[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return &expense, nil
}

func cloneUser(u domain.User) domain.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}
