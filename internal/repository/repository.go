package repository

import (
	"context"
	"time"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
)

// UserRepository persists credentials. Implementations must keep usernames
// unique across every write and report violations as ErrConflict.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUsername(ctx context.Context, id, username string, updatedAt time.Time) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error
}

// ExpenseRepository persists expenses. Every lookup after creation is
// filtered by owner; a record owned by someone else yields ErrNotFound.
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, expense *domain.Expense) error
	ListExpensesByOwner(ctx context.Context, userID string) ([]domain.Expense, error)
	UpdateOwnedExpense(ctx context.Context, userID, id string, changes domain.ExpenseChanges, updatedAt time.Time) (*domain.Expense, error)
	DeleteOwnedExpense(ctx context.Context, userID, id string) (*domain.Expense, error)
}
