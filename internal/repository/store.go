package repository

import (
	"context"
	"errors"

	"github.com/taskguard/taskguard-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserStore persists users. Update and delete report how many documents
// matched so callers can tell a lost race from a store failure.
type UserStore interface {
	InsertUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id model.ID) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, id model.ID, update model.UserUpdate) (matched int64, err error)
	DeleteUser(ctx context.Context, id model.ID) (deleted int64, err error)
}

// TaskStore persists tasks.
type TaskStore interface {
	InsertTask(ctx context.Context, task *model.Task) error
	FindTaskByID(ctx context.Context, id model.ID) (*model.Task, error)
	// ListTasks returns every task, or only owner's tasks when owner is non-nil.
	ListTasks(ctx context.Context, owner *model.ID) ([]model.Task, error)
	UpdateTask(ctx context.Context, id model.ID, update model.TaskUpdate) (matched int64, err error)
	DeleteTask(ctx context.Context, id model.ID) (deleted int64, err error)
}

// Store is a document store holding the users and tasks collections.
type Store interface {
	UserStore
	TaskStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
