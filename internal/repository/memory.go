package repository

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/taskguard/taskguard-go/internal/model"
)

// MemoryStore is a Store kept in process memory. It backs tests and the
// "memory" store driver; each instance is independent.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[model.ID]model.User
	tasks map[model.ID]model.Task
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[model.ID]model.User),
		tasks: make(map[model.ID]model.Task),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error  { return nil }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) InsertUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTakenLocked(user.Email, model.ID{}) {
		return ErrDuplicateEmail
	}
	if user.ID.IsZero() {
		user.ID = model.NewID()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id model.ID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b model.User) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return users, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id model.ID, update model.UserUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, nil
	}
	if update.Email != nil && s.emailTakenLocked(*update.Email, id) {
		return 0, ErrDuplicateEmail
	}

	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.Active != nil {
		u.Active = *update.Active
	}
	if update.BumpTokenVersion {
		u.TokenVersion++
	}
	u.UpdatedAt = update.UpdatedAt

	s.users[id] = u
	return 1, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id model.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return 0, nil
	}
	delete(s.users, id)
	return 1, nil
}

func (s *MemoryStore) emailTakenLocked(email string, except model.ID) bool {
	for id, u := range s.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) InsertTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID.IsZero() {
		task.ID = model.NewID()
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *MemoryStore) FindTaskByID(ctx context.Context, id model.ID) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, owner *model.ID) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]model.Task, 0)
	for _, t := range s.tasks {
		if owner != nil && t.UserID != *owner {
			continue
		}
		tasks = append(tasks, t)
	}
	slices.SortFunc(tasks, func(a, b model.Task) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return tasks, nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, id model.ID, update model.TaskUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return 0, nil
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.UserID != nil {
		t.UserID = *update.UserID
	}
	if update.Completed != nil {
		t.Completed = *update.Completed
	}
	t.UpdatedAt = update.UpdatedAt

	s.tasks[id] = t
	return 1, nil
}

func (s *MemoryStore) DeleteTask(ctx context.Context, id model.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return 0, nil
	}
	delete(s.tasks, id)
	return 1, nil
}
