package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskguard/taskguard-go/internal/middleware"
	"github.com/taskguard/taskguard-go/internal/service"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	Logger     *slog.Logger
	Production bool
	Identity   middleware.Authenticator
	Auth       *service.AuthService
	Users      *service.UserService
	Tasks      *service.TaskService
	// Ping reports whether the backing store is reachable. Nil skips the check.
	Ping func(ctx context.Context) error
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	expose := !cfg.Production
	authHandler := NewAuthHandler(cfg.Auth, cfg.Logger, expose)
	userHandler := NewUserHandler(cfg.Users, cfg.Logger, expose)
	taskHandler := NewTaskHandler(cfg.Tasks, cfg.Logger, expose)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders(cfg.Production))

	r.Get("/health", handleHealth(cfg.Ping))

	r.Post("/token", authHandler.HandleToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthenticate(cfg.Identity, cfg.Logger))
		r.Post("/users", userHandler.HandleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Identity, cfg.Logger))

		r.Post("/logout", authHandler.HandleLogout)

		r.Get("/users", userHandler.HandleList)
		r.Get("/users/me", userHandler.HandleMe)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Put("/users/{id}", userHandler.HandleUpdate)
		r.Patch("/users/{id}/deactivate", userHandler.HandleDeactivate)
		r.Delete("/users/{id}", userHandler.HandleDelete)

		r.Get("/tasks", taskHandler.HandleList)
		r.Post("/tasks", taskHandler.HandleCreate)
		r.Get("/tasks/{id}", taskHandler.HandleGet)
		r.Put("/tasks/{id}", taskHandler.HandleUpdate)
		r.Patch("/tasks/{id}/complete", taskHandler.HandleComplete)
		r.Delete("/tasks/{id}", taskHandler.HandleDelete)
	})

	return r
}

func handleHealth(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
