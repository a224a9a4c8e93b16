package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/repository"
	"github.com/Devesh-22/expense-tracker-api/pkg/config"
)

var (
	ErrInvalidInput           = errors.New("expense: invalid input")
	ErrNotFoundOrUnauthorized = errors.New("expense: not found or unauthorized")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string { return e.Field + " " + e.Reason }

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// CreateInput carries the fields of a new expense. A zero Date means today.
type CreateInput struct {
	Description string    `json:"description" validate:"required,max=500"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Category    string    `json:"category" validate:"required,max=100"`
	Date        time.Time `json:"date"`
}

// UpdateInput carries a partial update. Nil fields keep their stored value.
type UpdateInput struct {
	Description *string    `json:"description" validate:"omitnil,min=1,max=500"`
	Amount      *float64   `json:"amount" validate:"omitnil,gt=0"`
	Category    *string    `json:"category" validate:"omitnil,min=1,max=100"`
	Date        *time.Time `json:"date"`
}

// Service scopes every expense operation to the calling owner.
type Service struct {
	expenses repository.ExpenseRepository
	validate *validator.Validate
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// New constructs a Service.
func New(expenses repository.ExpenseRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return Service{
		expenses: expenses,
		validate: validate,
		logger:   logger,
		timeout:  cfg.StoreTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create records a new expense owned by ownerID. Any owner supplied by the
// client is ignored; ownerID always comes from the verified token.
func (s Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Expense, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	if err := s.check(input); err != nil {
		return nil, err
	}

	now := s.now()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	expense := &domain.Expense{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Description: input.Description,
		Amount:      input.Amount,
		Category:    input.Category,
		Date:        truncateDate(date),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.expenses.CreateExpense(storeCtx, expense); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ValidationError{Field: "user", Reason: "no longer exists"}
		}
		return nil, fmt.Errorf("expense: create: %w", err)
	}
	s.logger.Info("expense created", "user_id", ownerID, "expense_id", expense.ID)
	return expense, nil
}

// ListOwned returns ownerID's expenses ordered by date.
func (s Service) ListOwned(ctx context.Context, ownerID string) ([]domain.Expense, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	expenses, err := s.expenses.ListExpensesByOwner(storeCtx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("expense: list: %w", err)
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return expenses, nil
}

// UpdateOwned applies input to expense id if ownerID owns it. Missing,
// malformed and foreign ids all yield ErrNotFoundOrUnauthorized.
func (s Service) UpdateOwned(ctx context.Context, ownerID, id string, input UpdateInput) (*domain.Expense, error) {
	if !validID(id) {
		return nil, ErrNotFoundOrUnauthorized
	}
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		input.Description = &trimmed
	}
	if input.Category != nil {
		trimmed := strings.TrimSpace(*input.Category)
		input.Category = &trimmed
	}
	if err := s.check(input); err != nil {
		return nil, err
	}

	changes := domain.ExpenseChanges{
		Description: input.Description,
		Amount:      input.Amount,
		Category:    input.Category,
	}
	if input.Date != nil {
		if input.Date.IsZero() {
			return nil, ValidationError{Field: "date", Reason: "is required"}
		}
		date := truncateDate(*input.Date)
		changes.Date = &date
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	expense, err := s.expenses.UpdateOwnedExpense(storeCtx, ownerID, id, changes, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("expense: update: %w", err)
	}
	s.logger.Info("expense updated", "user_id", ownerID, "expense_id", id)
	return expense, nil
}

// DeleteOwned removes expense id if ownerID owns it.
func (s Service) DeleteOwned(ctx context.Context, ownerID, id string) (*domain.Expense, error) {
	if !validID(id) {
		return nil, ErrNotFoundOrUnauthorized
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	expense, err := s.expenses.DeleteOwnedExpense(storeCtx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("expense: delete: %w", err)
	}
	s.logger.Info("expense deleted", "user_id", ownerID, "expense_id", id)
	return expense, nil
}

func (s Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "min":
		return ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return ValidationError{Field: fe.Field(), Reason: "must be at most " + fe.Param() + " characters"}
	case "gt":
		return ValidationError{Field: fe.Field(), Reason: "must be greater than " + fe.Param()}
	default:
		return ValidationError{Field: fe.Field(), Reason: "is invalid"}
	}
}

func (s Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
