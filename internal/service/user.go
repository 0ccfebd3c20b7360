package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskguard/taskguard-go/internal/crypto"
	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/policy"
	"github.com/taskguard/taskguard-go/internal/repository"
)

// UserService handles user account business logic.
type UserService struct {
	users  repository.UserStore
	hasher *crypto.Hasher
	policy *policy.Engine
	now    func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(users repository.UserStore, hasher *crypto.Hasher, engine *policy.Engine) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		policy: engine,
		now:    time.Now,
	}
}

// Register creates an account. actor is nil for anonymous sign-up; only an
// admin may create another admin.
func (s *UserService) Register(ctx context.Context, actor *model.User, req model.CreateUserRequest) (model.UserResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return model.UserResponse{}, err
	}

	role := req.Role
	if role == "" {
		role = model.RoleViewer
	}
	if role == model.RoleAdmin {
		if err := s.policy.Check(actor, policy.AssignRole, nil); err != nil {
			return model.UserResponse{}, err
		}
	}

	active := true
	if req.IsActived != nil {
		active = *req.IsActived
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.UserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.InsertUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.UserResponse{}, ErrEmailTaken
		}
		return model.UserResponse{}, fmt.Errorf("create user: %w", err)
	}

	return model.NewUserResponse(user), nil
}

// List returns every user.
func (s *UserService) List(ctx context.Context, actor *model.User) ([]model.UserResponse, error) {
	if err := s.policy.Check(actor, policy.ListUsers, nil); err != nil {
		return nil, err
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	result := make([]model.UserResponse, len(users))
	for i := range users {
		result[i] = model.NewUserResponse(&users[i])
	}
	return result, nil
}

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context, actor *model.User) (model.UserResponse, error) {
	if err := s.policy.Check(actor, policy.ReadSelf, actor); err != nil {
		return model.UserResponse{}, err
	}
	return model.NewUserResponse(actor), nil
}

// Get returns the user with id.
func (s *UserService) Get(ctx context.Context, actor *model.User, id model.ID) (model.UserResponse, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return model.UserResponse{}, err
	}
	if err := s.policy.Check(actor, policy.ReadUser, target); err != nil {
		return model.UserResponse{}, err
	}
	return model.NewUserResponse(target), nil
}

// Update applies a partial profile update. Changing the email or password,
// or deactivating the account, invalidates every token already issued to it.
func (s *UserService) Update(ctx context.Context, actor *model.User, id model.ID, req model.UpdateUserRequest) (model.UserResponse, error) {
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		req.Email = &email
	}
	if err := validateRequest(req); err != nil {
		return model.UserResponse{}, err
	}

	target, err := s.load(ctx, id)
	if err != nil {
		return model.UserResponse{}, err
	}
	if err := s.policy.Check(actor, policy.UpdateUser, target); err != nil {
		return model.UserResponse{}, err
	}

	update := model.UserUpdate{UpdatedAt: s.now().UTC()}

	if req.Name != nil {
		update.Name = req.Name
	}
	if req.Email != nil && *req.Email != target.Email {
		update.Email = req.Email
		update.BumpTokenVersion = true
	}
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return model.UserResponse{}, fmt.Errorf("hash password: %w", err)
		}
		update.PasswordHash = &hash
		update.BumpTokenVersion = true
	}
	if req.Role != nil && *req.Role != target.Role {
		if err := s.policy.Check(actor, policy.AssignRole, target); err != nil {
			return model.UserResponse{}, err
		}
		update.Role = req.Role
	}
	if req.IsActived != nil && *req.IsActived != target.Active {
		if *req.IsActived {
			// Reactivation is a role grant; owners cannot log in to do it.
			if err := s.policy.Check(actor, policy.AssignRole, target); err != nil {
				return model.UserResponse{}, err
			}
		} else {
			if err := s.policy.Check(actor, policy.DeactivateUser, target); err != nil {
				return model.UserResponse{}, err
			}
			update.BumpTokenVersion = true
		}
		update.Active = req.IsActived
	}

	if err := s.apply(ctx, id, update); err != nil {
		return model.UserResponse{}, err
	}
	return s.reload(ctx, id)
}

// Deactivate disables the account and revokes its tokens.
func (s *UserService) Deactivate(ctx context.Context, actor *model.User, id model.ID) (model.UserResponse, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return model.UserResponse{}, err
	}
	if err := s.policy.Check(actor, policy.DeactivateUser, target); err != nil {
		return model.UserResponse{}, err
	}

	inactive := false
	if err := s.apply(ctx, id, model.UserUpdate{
		Active:           &inactive,
		BumpTokenVersion: true,
		UpdatedAt:        s.now().UTC(),
	}); err != nil {
		return model.UserResponse{}, err
	}
	return s.reload(ctx, id)
}

// Delete removes the account.
func (s *UserService) Delete(ctx context.Context, actor *model.User, id model.ID) error {
	target, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Check(actor, policy.DeleteUser, target); err != nil {
		return err
	}

	deleted, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserService) load(ctx context.Context, id model.ID) (*model.User, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserService) apply(ctx context.Context, id model.ID, update model.UserUpdate) error {
	matched, err := s.users.UpdateUser(ctx, id, update)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserService) reload(ctx context.Context, id model.ID) (model.UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return model.UserResponse{}, err
	}
	return model.NewUserResponse(user), nil
}
