package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/policy"
	"github.com/taskguard/taskguard-go/internal/repository"
)

const (
	testSecret   = "service-test-secret-long-enough-for-hs256"
	testPassword = "correct-horse-battery"
	testTTL      = 30 * time.Minute
)

type fixture struct {
	store    *repository.MemoryStore
	deny     *repository.MemoryDenyList
	hasher   *crypto.Hasher
	tokens   *crypto.TokenService
	identity *IdentityService
	auth     *AuthService
	users    *UserService
	tasks    *TaskService
	now      time.Time

	admin  *model.User
	editor *model.User
	viewer *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  repository.NewMemoryStore(),
		deny:   repository.NewMemoryDenyList(),
		hasher: crypto.NewHasher(crypto.HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}),
		now:    time.Now(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := policy.New()

	f.tokens = crypto.NewTokenService(testSecret, crypto.WithClock(func() time.Time { return f.now }))
	f.identity = NewIdentityService(f.store, f.tokens, f.deny, logger)
	f.auth = NewAuthService(f.store, f.hasher, f.tokens, f.deny, testTTL, logger)
	f.users = NewUserService(f.store, f.hasher, engine)
	f.tasks = NewTaskService(f.store, engine)

	f.admin = f.seedUser(t, "admin@example.com", model.RoleAdmin)
	f.editor = f.seedUser(t, "editor@example.com", model.RoleEditor)
	f.viewer = f.seedUser(t, "viewer@example.com", model.RoleViewer)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()

	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)

	u := &model.User{
		Name:         string(role),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.store.InsertUser(context.Background(), u))
	return u
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()

	resp, err := f.auth.Login(context.Background(), model.LoginRequest{Username: email, Password: testPassword})
	require.NoError(t, err)
	return resp.AccessToken
}

// reload returns the stored copy of u, as the identity resolver would.
func (f *fixture) reload(t *testing.T, u *model.User) *model.User {
	t.Helper()

	got, err := f.store.FindUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
