package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/repository"
)

// IdentityService turns a bearer token into the user it was issued to.
type IdentityService struct {
	users  repository.UserStore
	tokens *crypto.TokenService
	deny   repository.DenyList
	logger *slog.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(users repository.UserStore, tokens *crypto.TokenService, deny repository.DenyList, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		tokens: tokens,
		deny:   deny,
		logger: logger,
	}
}

// Authenticate verifies token and resolves its subject.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (*model.User, *crypto.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		reason, _ := crypto.TokenReasonOf(err)
		s.logger.DebugContext(ctx, "token rejected", "reason", reason)
		return nil, nil, ErrUnauthenticated
	}

	user, err := s.Resolve(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Resolve loads the active user named by verified claims. Revoked tokens,
// unknown or inactive users, a uid that no longer matches the account
// holding the email and stale token versions all yield ErrUnauthenticated.
func (s *IdentityService) Resolve(ctx context.Context, claims *crypto.Claims) (*model.User, error) {
	if claims == nil || claims.Subject == "" || claims.UserID == "" {
		return nil, ErrUnauthenticated
	}

	if claims.ID != "" {
		revoked, err := s.deny.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			s.logger.DebugContext(ctx, "token rejected", "reason", "revoked")
			return nil, ErrUnauthenticated
		}
	}

	user, err := s.users.FindUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	if user.ID.Hex() != claims.UserID {
		s.logger.DebugContext(ctx, "token rejected", "reason", "account replaced")
		return nil, ErrUnauthenticated
	}
	if !user.Active {
		s.logger.DebugContext(ctx, "token rejected", "reason", "inactive user")
		return nil, ErrUnauthenticated
	}
	if claims.TokenVersion != user.TokenVersion {
		s.logger.DebugContext(ctx, "token rejected", "reason", "stale token version")
		return nil, ErrUnauthenticated
	}

	return user, nil
}
