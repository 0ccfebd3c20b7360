package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/service"
)

type fakeAuthenticator struct {
	users map[string]*model.User
	err   error
}

func (f fakeAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, *crypto.Claims, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return nil, nil, service.ErrUnauthenticated
	}
	claims := &crypto.Claims{}
	claims.Subject = user.Email
	return user, claims, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func echoUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	if _, ok := ClaimsFromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(user.Email))
}

func TestAuthenticate(t *testing.T) {
	alice := &model.User{ID: model.NewID(), Email: "alice@example.com", Role: model.RoleViewer}
	auth := fakeAuthenticator{users: map[string]*model.User{"good": alice}}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer good", http.StatusOK, "alice@example.com"},
		{"lowercase scheme", "bearer good", http.StatusOK, "alice@example.com"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
	}

	h := Authenticate(auth, discard)(http.HandlerFunc(echoUser))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
					t.Errorf("WWW-Authenticate = %q, want Bearer", got)
				}
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body["error"] != unauthenticatedMessage {
					t.Errorf("error = %q, want %q", body["error"], unauthenticatedMessage)
				}
				return
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	auth := fakeAuthenticator{err: errors.New("connection refused")}
	h := Authenticate(auth, discard)(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestOptionalAuthenticate(t *testing.T) {
	alice := &model.User{ID: model.NewID(), Email: "alice@example.com"}
	h := OptionalAuthenticate(fakeAuthenticator{users: map[string]*model.User{"good": alice}}, discard)(http.HandlerFunc(echoUser))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"anonymous", "", http.StatusOK, "anonymous"},
		{"authenticated", "Bearer good", http.StatusOK, "alice@example.com"},
		{"bad token is not anonymous", "Bearer bad", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestUserFromContextEmpty(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
	var nilUser *model.User
	if _, ok := UserFromContext(ContextWithUser(context.Background(), nilUser)); ok {
		t.Fatal("expected a nil user to count as absent")
	}
}
