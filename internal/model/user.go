package model

import "time"

// Role is a user's single authorization role. Values other than the
// constants below are custom roles that receive no grants.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// User represents a user document.
type User struct {
	ID           ID        `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         Role      `bson:"role"`
	Active       bool      `bson:"isActived"`
	TokenVersion int64     `bson:"token_version"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// OwnerID makes a user the owner of their own profile.
func (u *User) OwnerID() ID {
	if u == nil {
		return ID{}
	}
	return u.ID
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CreateUserRequest represents a user registration request.
type CreateUserRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Role      Role   `json:"role" validate:"omitempty,max=32"`
	IsActived *bool  `json:"isActived"`
}

// UpdateUserRequest represents a profile update. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=128"`
	Role      *Role   `json:"role" validate:"omitempty,min=1,max=32"`
	IsActived *bool   `json:"isActived"`
}

// UserUpdate lists the fields a store update writes. Nil fields are untouched.
type UserUpdate struct {
	Name             *string
	Email            *string
	PasswordHash     *string
	Role             *Role
	Active           *bool
	BumpTokenVersion bool
	UpdatedAt        time.Time
}

// LoginRequest represents the password grant form posted to /token.
type LoginRequest struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActived bool      `json:"isActived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserResponse renders a user for the API.
func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:        u.ID.Hex(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsActived: u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
