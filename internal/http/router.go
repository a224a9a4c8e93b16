package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Devesh-22/expense-tracker-api/internal/domain"
	"github.com/Devesh-22/expense-tracker-api/internal/service/auth"
	"github.com/Devesh-22/expense-tracker-api/internal/service/expense"
	"github.com/Devesh-22/expense-tracker-api/pkg/crypto"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	expenses expense.Service
	validate *validator.Validate
	registry *prometheus.Registry
	metrics  *httpMetrics
	dbHealth func(context.Context) error
}

const (
	healthCheckTimeout = 2 * time.Second

	msgCredentialsRequired = "Username and password are required."
	msgUsernameTaken       = "Username already taken."
	msgInvalidCredentials  = "Invalid credentials."
	msgInternal            = "Internal server error."
	msgServerError         = "Server error"
	msgUserNotFound        = "User not found"
	msgExpenseNotFound     = "Expense not found or unauthorized"
	msgPasswordTooLong     = "Password must be at most 72 bytes."
	msgUnavailable         = "Service temporarily unavailable."
)

// NewRouter assembles routes with dependencies. A nil registry disables /metrics.
func NewRouter(logger *slog.Logger, authSvc auth.Service, expenseSvc expense.Service, registry *prometheus.Registry, dbHealth func(context.Context) error) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		expenses: expenseSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		registry: registry,
		dbHealth: dbHealth,
	}
	if registry != nil {
		r.metrics = newHTTPMetrics(registry)
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.handle("/", "/", r.handleRoot)
	r.handle("/healthz", "/healthz", r.handleHealthz)
	r.handle("/register", "/register", r.handleRegister)
	r.handle("/login", "/login", r.handleLogin)
	r.handle("/dashboard", "/dashboard", r.requireAuth(r.handleDashboard))
	r.handle("/profile", "/profile", r.requireAuth(r.handleProfile))
	r.handle("/change-password", "/change-password", r.requireAuth(r.handleChangePassword))
	r.handle("/expenses", "/expenses", r.requireAuth(r.handleExpenses))
	r.handle("/expenses/", "/expenses/:id", r.requireAuth(r.handleExpenseByID))
	if r.registry != nil {
		metrics := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
		r.handle("/metrics", "/metrics", metrics.ServeHTTP)
	}
}

func (r *Router) handle(pattern, route string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.audit(route, r.recoverPanics(h)))
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Expense Tracker API is running!"})
}

type credentialsPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if err := decodeJSON(w, req, &payload); err != nil {
		bodyError(w, err)
		return
	}
	if err := r.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return
	}
	user, err := r.auth.Register(req.Context(), payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, crypto.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, msgPasswordTooLong)
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		case errors.Is(err, auth.ErrDuplicateUsername):
			writeError(w, http.StatusBadRequest, msgUsernameTaken)
		default:
			r.failure(w, req, err, msgInternal)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    marshalUser(user),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if err := decodeJSON(w, req, &payload); err != nil {
		bodyError(w, err)
		return
	}
	if err := r.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return
	}
	token, _, err := r.auth.Login(req.Context(), payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, msgInvalidCredentials)
		default:
			r.failure(w, req, err, msgInternal)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome " + info.Username + ", this is a protected dashboard.",
	})
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		user, err := r.auth.Profile(req.Context(), info.UserID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, msgUserNotFound)
				return
			}
			r.failure(w, req, err, msgServerError)
			return
		}
		writeJSON(w, http.StatusOK, marshalUser(user))
	case http.MethodPut:
		var payload struct {
			Username string `json:"username" validate:"required"`
		}
		if err := decodeJSON(w, req, &payload); err != nil {
			bodyError(w, err)
			return
		}
		if err := r.validate.Struct(payload); err != nil {
			writeError(w, http.StatusBadRequest, "Username is required")
			return
		}
		user, err := r.auth.UpdateUsername(req.Context(), info.UserID, payload.Username)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, "Username is required")
			case errors.Is(err, auth.ErrDuplicateUsername):
				writeError(w, http.StatusBadRequest, "Username already taken")
			case errors.Is(err, auth.ErrUserNotFound):
				writeError(w, http.StatusNotFound, msgUserNotFound)
			default:
				r.failure(w, req, err, msgServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Profile updated",
			"user":    marshalUser(user),
		})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	var payload struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		bodyError(w, err)
		return
	}
	if err := r.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "Old and new passwords are required")
		return
	}
	err := r.auth.ChangePassword(req.Context(), info.UserID, payload.OldPassword, payload.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, crypto.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, msgPasswordTooLong)
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Old and new passwords are required")
		case errors.Is(err, auth.ErrIncorrectPassword):
			writeError(w, http.StatusBadRequest, "Old password is incorrect")
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusNotFound, msgUserNotFound)
		default:
			r.failure(w, req, err, msgServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

type expensePayload struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Category    *string  `json:"category"`
	Date        *string  `json:"date"`
}

func (r *Router) handleExpenses(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		expenses, err := r.expenses.ListOwned(req.Context(), info.UserID)
		if err != nil {
			r.failure(w, req, err, msgInternal)
			return
		}
		writeJSON(w, http.StatusOK, marshalExpenses(expenses))
	case http.MethodPost:
		var payload expensePayload
		if err := decodeJSON(w, req, &payload); err != nil {
			bodyError(w, err)
			return
		}
		input := expense.CreateInput{}
		if payload.Description != nil {
			input.Description = *payload.Description
		}
		if payload.Amount != nil {
			input.Amount = *payload.Amount
		}
		if payload.Category != nil {
			input.Category = *payload.Category
		}
		if payload.Date != nil {
			date, err := parseExpenseDate(*payload.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			input.Date = date
		}
		created, err := r.expenses.Create(req.Context(), info.UserID, input)
		if err != nil {
			r.expenseFailure(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, marshalExpense(*created))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleExpenseByID(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/expenses/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPut:
		var payload expensePayload
		if err := decodeJSON(w, req, &payload); err != nil {
			bodyError(w, err)
			return
		}
		input := expense.UpdateInput{
			Description: payload.Description,
			Amount:      payload.Amount,
			Category:    payload.Category,
		}
		if payload.Date != nil {
			date, err := parseExpenseDate(*payload.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			input.Date = &date
		}
		updated, err := r.expenses.UpdateOwned(req.Context(), info.UserID, id, input)
		if err != nil {
			r.expenseFailure(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, marshalExpense(*updated))
	case http.MethodDelete:
		if _, err := r.expenses.DeleteOwned(req.Context(), info.UserID, id); err != nil {
			r.expenseFailure(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) expenseFailure(w http.ResponseWriter, req *http.Request, err error) {
	var invalid expense.ValidationError
	switch {
	case errors.Is(err, expense.ErrNotFoundOrUnauthorized):
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, expense.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid expense")
	default:
		r.failure(w, req, err, msgInternal)
	}
}

// failure reports an unexpected error. Store timeouts become 503; everything
// else is a 500 with a generic message.
func (r *Router) failure(w http.ResponseWriter, req *http.Request, err error, msg string) {
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Error("store call timed out", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}
	r.logger.Error("request failed", "error", err, "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, msg)
}

func (r *Router) caller(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return authInfo{}, false
	}
	return info, true
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			status = "degraded"
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) recoverPanics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			r.logger.Error("handler panic", "panic", rec, "path", req.URL.Path, "stack", string(debug.Stack()))
			writeError(w, http.StatusInternalServerError, msgInternal)
		}()
		next(w, req)
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

var errInvalidDate = errors.New("date must be YYYY-MM-DD or RFC 3339")

func parseExpenseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if t, err := time.Parse(domain.DateLayout, trimmed); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}
