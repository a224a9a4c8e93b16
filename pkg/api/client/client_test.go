package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpx "github.com/Devesh-22/expense-tracker-api/internal/http"
	"github.com/Devesh-22/expense-tracker-api/internal/repository/memory"
	"github.com/Devesh-22/expense-tracker-api/internal/service/auth"
	"github.com/Devesh-22/expense-tracker-api/internal/service/expense"
	"github.com/Devesh-22/expense-tracker-api/pkg/api/client"
	"github.com/Devesh-22/expense-tracker-api/pkg/config"
	"github.com/Devesh-22/expense-tracker-api/pkg/crypto"
	jwtpkg "github.com/Devesh-22/expense-tracker-api/pkg/jwt"
)

func newServer(t *testing.T) *client.Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{StoreTimeout: time.Second}
	issuer, err := jwtpkg.NewIssuer("client-test-secret")
	require.NoError(t, err)

	repo := memory.New()
	router := httpx.NewRouter(log,
		auth.New(repo, crypto.NewHasher(4), issuer, log, cfg),
		expense.New(repo, log, cfg),
		nil,
		repo.Ping,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	cli, err := client.New(srv.URL, client.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return cli
}

func ptr[T any](v T) *T { return &v }

func TestClientAccountFlow(t *testing.T) {
	ctx := context.Background()
	cli := newServer(t)

	user, err := cli.Register(ctx, "dana", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "dana", user.Username)
	assert.NotEmpty(t, user.ID)

	_, err = cli.Register(ctx, "dana", "pw1")
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "Username already taken.")

	_, err = cli.Login(ctx, "dana", "nope")
	assert.True(t, client.IsStatus(err, http.StatusBadRequest))

	token, err := cli.Login(ctx, "dana", "pw1")
	require.NoError(t, err)

	greeting, err := cli.Dashboard(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Welcome dana, this is a protected dashboard.", greeting)

	profile, err := cli.Profile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, profile.ID)

	renamed, err := cli.UpdateProfile(ctx, token, "dana2")
	require.NoError(t, err)
	assert.Equal(t, "dana2", renamed.Username)

	require.NoError(t, cli.ChangePassword(ctx, token, "pw1", "pw2"))
	_, err = cli.Login(ctx, "dana2", "pw2")
	require.NoError(t, err)

	_, err = cli.Profile(ctx, "")
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
}

func TestClientExpenseFlow(t *testing.T) {
	ctx := context.Background()
	cli := newServer(t)

	_, err := cli.Register(ctx, "erin", "pw")
	require.NoError(t, err)
	token, err := cli.Login(ctx, "erin", "pw")
	require.NoError(t, err)

	created, err := cli.CreateExpense(ctx, token, client.ExpenseInput{
		Description: ptr("Groceries"),
		Amount:      ptr(42.75),
		Category:    ptr("food"),
		Date:        ptr("2024-05-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", created.Date)

	updated, err := cli.UpdateExpense(ctx, token, created.ID, client.ExpenseInput{Category: ptr("household")})
	require.NoError(t, err)
	assert.Equal(t, "household", updated.Category)
	assert.Equal(t, 42.75, updated.Amount)

	list, err := cli.ListExpenses(ctx, token)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, cli.DeleteExpense(ctx, token, created.ID))
	err = cli.DeleteExpense(ctx, token, created.ID)
	assert.True(t, client.IsStatus(err, http.StatusNotFound))

	list, err = cli.ListExpenses(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := client.New("localhost:3000/")
	require.NoError(t, err)
	require.NotNil(t, cli)

	_, err = client.New("")
	require.NoError(t, err)
}
