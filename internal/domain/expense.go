package domain

import "time"

// DateLayout is the calendar-date wire format used for Expense.Date.
const DateLayout = "2006-01-02"

// Expense is a single financial entry owned by exactly one user.
type Expense struct {
	ID          string
	UserID      string
	Description string
	Amount      float64
	Category    string
	Date        time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExpenseChanges lists the fields an owner may modify. Nil fields are left untouched.
type ExpenseChanges struct {
	Description *string
	Amount      *float64
	Category    *string
	Date        *time.Time
}

// Apply copies the set fields onto e.
func (c ExpenseChanges) Apply(e *Expense) {
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.Amount != nil {
		e.Amount = *c.Amount
	}
	if c.Category != nil {
		e.Category = *c.Category
	}
	if c.Date != nil {
		e.Date = *c.Date
	}
}
