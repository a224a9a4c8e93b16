package httpx

import (
	"time"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
)

// marshalUser never exposes the password hash.
func marshalUser(u *domain.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func marshalExpense(e domain.Expense) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"user_id":     e.UserID,
		"description": e.Description,
		"amount":      e.Amount,
		"category":    e.Category,
		"date":        e.Date.UTC().Format(domain.DateLayout),
		"created_at":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func marshalExpenses(expenses []domain.Expense) []map[string]any {
	items := make([]map[string]any, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, marshalExpense(e))
	}
	return items
}
