package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
)

// Querier is the subset of *pgxpool.Pool the repository relies on.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool Querier
}

// New constructs a Repository.
func New(pool Querier) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.ExpenseRepository = (*Repository)(nil)
)

const userColumns = `id, username, password_hash, created_at, updated_at`

const expenseColumns = `id, user_id, description, amount, category, spent_on, created_at, updated_at`

// CreateUser inserts a user. The unique index on username makes this the
// authoritative duplicate check.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return mapError(err)
}

// GetUserByUsername fetches a user by exact, case-sensitive username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdateUsername renames a user.
func (r *Repository) UpdateUsername(ctx context.Context, id, username string, updatedAt time.Time) (*domain.User, error) {
	const query = `UPDATE users SET username = $2, updated_at = $3
		WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, username, updatedAt))
}

// UpdatePasswordHash replaces a user's stored hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, hash, updatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateExpense inserts an expense.
func (r *Repository) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	const query = `INSERT INTO expenses (` + expenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		expense.ID,
		expense.UserID,
		expense.Description,
		expense.Amount,
		expense.Category,
		expense.Date,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	return mapError(err)
}

// ListExpensesByOwner returns the owner's expenses ordered by date.
func (r *Repository) ListExpensesByOwner(ctx context.Context, userID string) ([]domain.Expense, error) {
	const query = `SELECT ` + expenseColumns + ` FROM expenses
		WHERE user_id = $1 ORDER BY spent_on ASC, created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &e.Date, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// UpdateOwnedExpense applies the set fields of changes. The filter conjoins
// id and owner, so foreign and missing rows both yield ErrNotFound.
func (r *Repository) UpdateOwnedExpense(ctx context.Context, userID, id string, changes domain.ExpenseChanges, updatedAt time.Time) (*domain.Expense, error) {
	const query = `UPDATE expenses
		SET description = COALESCE($3, description),
			amount = COALESCE($4, amount),
			category = COALESCE($5, category),
			spent_on = COALESCE($6, spent_on),
			updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING ` + expenseColumns
	row := r.pool.QueryRow(ctx, query,
		id,
		userID,
		changes.Description,
		changes.Amount,
		changes.Category,
		changes.Date,
		updatedAt,
	)
	return scanExpense(row)
}

// DeleteOwnedExpense removes the expense when id and owner both match.
func (r *Repository) DeleteOwnedExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	const query = `DELETE FROM expenses WHERE id = $1 AND user_id = $2 RETURNING ` + expenseColumns
	return scanExpense(r.pool.QueryRow(ctx, query, id, userID))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var e domain.Expense
	if err := row.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &e.Date, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503", "22P02":
			return repository.ErrNotFound
		}
	}
	return err
}
