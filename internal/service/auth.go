package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/repository"
)

// BootstrapPasswordLength is the length of a generated bootstrap password.
const BootstrapPasswordLength = 24

// AuthService handles login, logout and the initial admin account.
type AuthService struct {
	users  repository.UserStore
	hasher *crypto.Hasher
	tokens *crypto.TokenService
	deny   repository.DenyList
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	// dummyHash is verified against when the email is unknown so that
	// unknown and known accounts take the same time to reject.
	dummyHash string
}

// NewAuthService creates a new AuthService issuing tokens valid for ttl.
func NewAuthService(users repository.UserStore, hasher *crypto.Hasher, tokens *crypto.TokenService, deny repository.DenyList, ttl time.Duration, logger *slog.Logger) *AuthService {
	dummy, err := hasher.Hash("taskguard-timing-equalizer")
	if err != nil {
		logger.Warn("could not precompute dummy hash", "error", err)
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		deny:      deny,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// Login checks the password grant and returns a bearer token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenResponse, error) {
	if err := validateRequest(req); err != nil {
		return model.TokenResponse{}, ErrInvalidCredentials
	}

	user, err := s.users.FindUserByEmail(ctx, normalizeEmail(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Verify(req.Password, s.dummyHash)
			return model.TokenResponse{}, ErrInvalidCredentials
		}
		return model.TokenResponse{}, fmt.Errorf("login: %w", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) || !user.Active {
		return model.TokenResponse{}, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, req.Password)
	}

	claims := crypto.Claims{
		UserID:       user.ID.Hex(),
		Role:         string(user.Role),
		TokenVersion: user.TokenVersion,
	}
	claims.Subject = user.Email

	token, _, err := s.tokens.Issue(claims, s.ttl)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.ttl / time.Second),
	}, nil
}

// rehash upgrades a stored hash to the current parameters. Failures are
// logged and do not fail the login.
func (s *AuthService) rehash(ctx context.Context, user *model.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "rehash failed", "user_id", user.ID.Hex(), "error", err)
		return
	}
	if _, err := s.users.UpdateUser(ctx, user.ID, model.UserUpdate{
		PasswordHash: &hash,
		UpdatedAt:    s.now().UTC(),
	}); err != nil {
		s.logger.WarnContext(ctx, "rehash failed", "user_id", user.ID.Hex(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.Hex())
}

// Logout revokes the token the claims were read from until it expires.
func (s *AuthService) Logout(ctx context.Context, claims *crypto.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return ErrUnauthenticated
	}
	if err := s.deny.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Bootstrap makes sure an admin account exists for email. When password is
// empty a random one is generated and returned; it is returned only when a
// new account was created.
func (s *AuthService) Bootstrap(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", nil
	}

	_, err := s.users.FindUserByEmail(ctx, email)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return "", fmt.Errorf("bootstrap admin: %w", err)
	}

	generated := ""
	if password == "" {
		password, err = crypto.GeneratePassword(BootstrapPasswordLength)
		if err != nil {
			return "", fmt.Errorf("bootstrap admin: %w", err)
		}
		generated = password
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("bootstrap admin: %w", err)
	}

	now := s.now().UTC()
	admin := &model.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.InsertUser(ctx, admin); err != nil {
		// Another instance seeded it first.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", nil
		}
		return "", fmt.Errorf("bootstrap admin: %w", err)
	}

	s.logger.InfoContext(ctx, "bootstrap admin created", "user_id", admin.ID.Hex())
	return generated, nil
}
