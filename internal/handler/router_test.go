package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/policy"
	"github.com/taskguard/taskguard-go/internal/repository"
	"github.com/taskguard/taskguard-go/internal/service"
)

const (
	testSecret   = "handler-test-secret-long-enough-for-hs256"
	testPassword = "correct-horse-battery"
	testTTL      = 30 * time.Minute
)

type testAPI struct {
	handler http.Handler
	store   repository.Store
	hasher  *crypto.Hasher
	now     time.Time
}

type apiOptions struct {
	production bool
	store      repository.Store
}

func newTestAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()

	store := opts.store
	if store == nil {
		store = repository.NewMemoryStore()
	}

	api := &testAPI{
		store:  store,
		hasher: crypto.NewHasher(crypto.HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}),
		now:    time.Now(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := crypto.NewTokenService(testSecret, crypto.WithClock(func() time.Time { return api.now }))
	deny := repository.NewMemoryDenyList()
	engine := policy.New()

	api.handler = NewRouter(RouterConfig{
		Logger:     logger,
		Production: opts.production,
		Identity:   service.NewIdentityService(store, tokens, deny, logger),
		Auth:       service.NewAuthService(store, api.hasher, tokens, deny, testTTL, logger),
		Users:      service.NewUserService(store, api.hasher, engine),
		Tasks:      service.NewTaskService(store, engine),
		Ping:       store.Ping,
	})
	return api
}

func (api *testAPI) seedUser(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()

	hash, err := api.hasher.Hash(testPassword)
	require.NoError(t, err)
	u := &model.User{Name: string(role), Email: email, PasswordHash: hash, Role: role, Active: true}
	require.NoError(t, api.store.InsertUser(context.Background(), u))
	return u
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) token(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) login(t *testing.T, email string) string {
	t.Helper()

	rec := api.token(t, email, testPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.AccessToken
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestEditorCreatesTaskViewerCannotDelete(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	editor := api.seedUser(t, "editor@example.com", model.RoleEditor)
	api.seedUser(t, "viewer@example.com", model.RoleViewer)

	editorToken := api.login(t, "editor@example.com")
	viewerToken := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodPost, "/tasks", editorToken, map[string]any{"title": "quarterly report"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[model.TaskResponse](t, rec)
	assert.Equal(t, editor.ID.Hex(), task.UserID)

	rec = api.do(t, http.MethodDelete, "/tasks/"+task.ID, viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not enough permissions", decode[map[string]string](t, rec)["error"])

	rec = api.do(t, http.MethodGet, "/tasks/"+task.ID, editorToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	body := map[string]any{"name": "Sam", "email": "sam@example.com", "password": "long-enough-password"}

	rec := api.do(t, http.MethodPost, "/users", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	created := decode[model.UserResponse](t, rec)
	assert.Equal(t, model.RoleViewer, created.Role)
	assert.True(t, created.IsActived)

	body["email"] = "SAM@example.com"
	rec = api.do(t, http.MethodPost, "/users", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already exists", decode[map[string]string](t, rec)["error"])
}

func TestExpiredTokenIsRejected(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "viewer@example.com", model.RoleViewer)
	token := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	api.now = api.now.Add(testTTL + time.Second)

	rec = api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestAdminDeletesMissingTask(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "admin@example.com", model.RoleAdmin)
	token := api.login(t, "admin@example.com")

	rec := api.do(t, http.MethodDelete, "/tasks/"+model.NewID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", decode[map[string]string](t, rec)["error"])
}

func TestTokenEndpoint(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "viewer@example.com", model.RoleViewer)

	rec := api.token(t, "viewer@example.com", testPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	resp := decode[model.TokenResponse](t, rec)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.EqualValues(t, testTTL/time.Second, resp.ExpiresIn)
	assert.NotEmpty(t, resp.AccessToken)

	for name, password := range map[string]string{"wrong password": "nope-nope-nope", "empty password": ""} {
		t.Run(name, func(t *testing.T) {
			rec := api.token(t, "viewer@example.com", password)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		})
	}

	t.Run("unknown user gets the same answer", func(t *testing.T) {
		rec := api.token(t, "ghost@example.com", testPassword)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Incorrect username or password", decode[map[string]string](t, rec)["error"])
	})
}

func TestLogoutEndpoint(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "viewer@example.com", model.RoleViewer)
	token := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodPost, "/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAdmin(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "admin@example.com", model.RoleAdmin)
	body := map[string]any{"name": "Root", "email": "root@example.com", "password": "long-enough-password", "role": "admin"}

	rec := api.do(t, http.MethodPost, "/users", "", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/users", "not-a-token", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/users", api.login(t, "admin@example.com"), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, model.RoleAdmin, decode[model.UserResponse](t, rec).Role)
}

func TestUserEndpoints(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "admin@example.com", model.RoleAdmin)
	viewer := api.seedUser(t, "viewer@example.com", model.RoleViewer)
	editor := api.seedUser(t, "editor@example.com", model.RoleEditor)

	adminToken := api.login(t, "admin@example.com")
	viewerToken := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodGet, "/users", viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Len(t, decode[[]model.UserResponse](t, rec), 3)

	rec = api.do(t, http.MethodGet, "/users/me", viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, viewer.ID.Hex(), decode[model.UserResponse](t, rec).ID)

	rec = api.do(t, http.MethodGet, "/users/"+editor.ID.Hex(), viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/users/not-an-id", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/users/"+viewer.ID.Hex(), viewerToken, map[string]any{"name": "Vera"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Vera", decode[model.UserResponse](t, rec).Name)

	rec = api.do(t, http.MethodPut, "/users/"+viewer.ID.Hex(), viewerToken, map[string]any{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/users/"+viewer.ID.Hex(), viewerToken, map[string]any{"email": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[map[string]any](t, rec)["fields"].(map[string]any)
	assert.Equal(t, "email", fields["email"])

	rec = api.do(t, http.MethodDelete, "/users/"+editor.ID.Hex(), viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodDelete, "/users/"+editor.ID.Hex(), adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodDelete, "/users/"+editor.ID.Hex(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode[map[string]string](t, rec)["error"])
}

func TestDeactivateRevokesTokens(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	viewer := api.seedUser(t, "viewer@example.com", model.RoleViewer)
	token := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodPatch, "/users/"+viewer.ID.Hex()+"/deactivate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[model.UserResponse](t, rec).IsActived)

	rec = api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.token(t, "viewer@example.com", testPassword)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeletedAccountEmailReuse(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "admin@example.com", model.RoleAdmin)
	old := api.seedUser(t, "reuse@example.com", model.RoleViewer)
	adminToken := api.login(t, "admin@example.com")
	staleToken := api.login(t, "reuse@example.com")

	rec := api.do(t, http.MethodDelete, "/users/"+old.ID.Hex(), adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/users", "", map[string]any{
		"name": "Someone Else", "email": "reuse@example.com", "password": "long-enough-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	replacement := decode[model.UserResponse](t, rec)

	rec = api.do(t, http.MethodGet, "/users/me", staleToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = api.token(t, "reuse@example.com", "long-enough-password")
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode[model.TokenResponse](t, rec).AccessToken

	rec = api.do(t, http.MethodGet, "/users/me", fresh, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, replacement.ID, decode[model.UserResponse](t, rec).ID)
}

func TestEmailChangeRevokesTokens(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	viewer := api.seedUser(t, "viewer@example.com", model.RoleViewer)
	token := api.login(t, "viewer@example.com")

	rec := api.do(t, http.MethodPut, "/users/"+viewer.ID.Hex(), token, map[string]any{"email": " Moved@Example.com "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "moved@example.com", decode[model.UserResponse](t, rec).Email)

	rec = api.do(t, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/users/me", api.login(t, "moved@example.com"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterPaddedEmail(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	rec := api.do(t, http.MethodPost, "/users", "", map[string]any{
		"name": "Pat", "email": "  Pat@Example.com ", "password": "long-enough-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pat@example.com", decode[model.UserResponse](t, rec).Email)

	api.login(t, "pat@example.com")
}

func TestTaskEndpoints(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "admin@example.com", model.RoleAdmin)
	viewer := api.seedUser(t, "viewer@example.com", model.RoleViewer)
	api.seedUser(t, "editor@example.com", model.RoleEditor)

	adminToken := api.login(t, "admin@example.com")
	viewerToken := api.login(t, "viewer@example.com")
	editorToken := api.login(t, "editor@example.com")

	rec := api.do(t, http.MethodPost, "/tasks", viewerToken, map[string]any{"title": "mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/tasks", adminToken, map[string]any{"title": "ghost", "user_id": model.NewID().Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid user ID", decode[map[string]string](t, rec)["error"])

	rec = api.do(t, http.MethodPost, "/tasks", adminToken, map[string]any{"title": "for viewer", "user_id": viewer.ID.Hex()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[model.TaskResponse](t, rec)

	rec = api.do(t, http.MethodGet, "/tasks", viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.TaskResponse](t, rec), 1)

	rec = api.do(t, http.MethodGet, "/tasks", editorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = api.do(t, http.MethodPut, "/tasks/"+task.ID, editorToken, map[string]any{"title": "taken over"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/tasks/"+task.ID, viewerToken, map[string]any{"title": "renamed", "description": "by owner"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "renamed", decode[model.TaskResponse](t, rec).Title)

	rec = api.do(t, http.MethodPatch, "/tasks/"+task.ID+"/complete", viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.TaskResponse](t, rec).Completed)

	rec = api.do(t, http.MethodDelete, "/tasks/"+task.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/tasks/"+task.ID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	api.seedUser(t, "editor@example.com", model.RoleEditor)
	token := api.login(t, "editor@example.com")

	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode[map[string]string](t, rec)["error"])
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

var errStoreDown = errors.New("store connection reset")

// brokenTaskStore fails every task listing.
type brokenTaskStore struct {
	*repository.MemoryStore
}

func (brokenTaskStore) ListTasks(ctx context.Context, owner *model.ID) ([]model.Task, error) {
	return nil, errStoreDown
}

func (brokenTaskStore) Ping(ctx context.Context) error { return errStoreDown }

func TestInternalErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		wantDetail bool
	}{
		{"development", false, true},
		{"production", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, apiOptions{production: tt.production, store: brokenTaskStore{repository.NewMemoryStore()}})
			api.seedUser(t, "viewer@example.com", model.RoleViewer)
			token := api.login(t, "viewer@example.com")

			rec := api.do(t, http.MethodGet, "/tasks", token, nil)
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			body := decode[map[string]string](t, rec)
			assert.Equal(t, "internal server error", body["error"])
			if tt.wantDetail {
				assert.Contains(t, body["detail"], errStoreDown.Error())
			} else {
				assert.NotContains(t, body, "detail")
			}

			rec = api.do(t, http.MethodGet, "/health", "", nil)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}
