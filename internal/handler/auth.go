package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskguard/taskguard-go/internal/middleware"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	responder
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger, exposeErrors bool) *AuthHandler {
	return &AuthHandler{
		service:   svc,
		responder: responder{logger: logger, exposeErrors: exposeErrors},
	}
}

// HandleToken handles POST /token. The body is an OAuth2 password grant
// form with username and password fields.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid form body"))
		return
	}

	if grant := r.PostForm.Get("grant_type"); grant != "" && grant != "password" {
		writeJSON(w, http.StatusBadRequest, errorResponse("unsupported grant type"))
		return
	}

	resp, err := h.service.Login(r.Context(), model.LoginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout handles POST /logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, r, service.ErrUnauthenticated)
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
