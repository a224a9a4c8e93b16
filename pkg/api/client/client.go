package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is supplied.
const DefaultBaseURL = "http://localhost:3000"

// Client provides typed access to the expense tracker API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError carrying status.
func IsStatus(err error, status int) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// User reflects API user payloads.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expense reflects API expense payloads. Date is a YYYY-MM-DD calendar date.
type Expense struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExpenseInput carries create and update fields. Nil fields are omitted, which
// leaves them unchanged on update.
type ExpenseInput struct {
	Description *string  `json:"description,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Date        *string  `json:"date,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (User, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, "/register", credentials{Username: username, Password: password}, "", &resp); err != nil {
		return User{}, err
	}
	if resp.User == nil {
		return User{Username: username}, nil
	}
	return *resp.User, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", credentials{Username: username, Password: password}, "", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("login response missing token")
	}
	return resp.Token, nil
}

// Dashboard returns the greeting for the token's user.
func (c *Client) Dashboard(ctx context.Context, token string) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, token, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Profile fetches the caller's account.
func (c *Client) Profile(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/profile", nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateProfile renames the caller.
func (c *Client) UpdateProfile(ctx context.Context, token, username string) (User, error) {
	var resp messageResponse
	payload := map[string]string{"username": username}
	if err := c.do(ctx, http.MethodPut, "/profile", payload, token, &resp); err != nil {
		return User{}, err
	}
	if resp.User == nil {
		return User{}, errors.New("profile response missing user")
	}
	return *resp.User, nil
}

// ChangePassword replaces the caller's password.
func (c *Client) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	payload := map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}
	return c.do(ctx, http.MethodPut, "/change-password", payload, token, nil)
}

// ListExpenses returns the caller's expenses.
func (c *Client) ListExpenses(ctx context.Context, token string) ([]Expense, error) {
	var expenses []Expense
	if err := c.do(ctx, http.MethodGet, "/expenses", nil, token, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

// CreateExpense records a new expense for the caller.
func (c *Client) CreateExpense(ctx context.Context, token string, input ExpenseInput) (Expense, error) {
	var expense Expense
	if err := c.do(ctx, http.MethodPost, "/expenses", input, token, &expense); err != nil {
		return Expense{}, err
	}
	return expense, nil
}

// UpdateExpense applies a partial update to one of the caller's expenses.
func (c *Client) UpdateExpense(ctx context.Context, token, id string, input ExpenseInput) (Expense, error) {
	if strings.TrimSpace(id) == "" {
		return Expense{}, errors.New("expense id is required")
	}
	var expense Expense
	if err := c.do(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), input, token, &expense); err != nil {
		return Expense{}, err
	}
	return expense, nil
}

// DeleteExpense removes one of the caller's expenses.
func (c *Client) DeleteExpense(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("expense id is required")
	}
	return c.do(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil, token, nil)
}
