package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskguard/taskguard-go/internal/model"
	"github.com/taskguard/taskguard-go/internal/policy"
	"github.com/taskguard/taskguard-go/internal/repository"
)

// TaskService handles task business logic.
type TaskService struct {
	store  repository.Store
	policy *policy.Engine
	now    func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store repository.Store, engine *policy.Engine) *TaskService {
	return &TaskService{
		store:  store,
		policy: engine,
		now:    time.Now,
	}
}

// Create adds a task owned by the caller, or by req.UserID when the caller
// may assign tasks to others.
//
// The owner lookup and the insert are separate store calls; a task created
// while its owner is being deleted is kept.
func (s *TaskService) Create(ctx context.Context, actor *model.User, req model.TaskRequest) (model.TaskResponse, error) {
	if err := validateRequest(req); err != nil {
		return model.TaskResponse{}, err
	}
	if err := s.policy.Check(actor, policy.CreateTask, nil); err != nil {
		return model.TaskResponse{}, err
	}

	owner := actor.ID
	if req.UserID != "" {
		id, err := model.ParseID(req.UserID)
		if err != nil {
			return model.TaskResponse{}, ErrInvalidOwner
		}
		owner = id
	}
	if owner != actor.ID {
		if err := s.policy.Check(actor, policy.AssignTask, nil); err != nil {
			return model.TaskResponse{}, err
		}
	}
	if err := s.ownerExists(ctx, owner); err != nil {
		return model.TaskResponse{}, err
	}

	now := s.now().UTC()
	task := &model.Task{
		Title:       req.Title,
		Description: req.Description,
		UserID:      owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}

	if err := s.store.InsertTask(ctx, task); err != nil {
		return model.TaskResponse{}, fmt.Errorf("create task: %w", err)
	}
	return model.NewTaskResponse(task), nil
}

// List returns every task for callers allowed to list all tasks and the
// caller's own tasks otherwise.
func (s *TaskService) List(ctx context.Context, actor *model.User) ([]model.TaskResponse, error) {
	var owner *model.ID
	err := s.policy.Check(actor, policy.ListAllTasks, nil)
	switch {
	case err == nil:
	case actor != nil && !actor.ID.IsZero():
		owner = &actor.ID
	default:
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return model.NewTaskResponses(tasks), nil
}

// Get returns the task with id.
func (s *TaskService) Get(ctx context.Context, actor *model.User, id model.ID) (model.TaskResponse, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskResponse{}, err
	}
	if err := s.policy.Check(actor, policy.ReadTask, task); err != nil {
		return model.TaskResponse{}, err
	}
	return model.NewTaskResponse(task), nil
}

// Update replaces the task's title, description and, when given, its
// completion flag and owner.
func (s *TaskService) Update(ctx context.Context, actor *model.User, id model.ID, req model.TaskRequest) (model.TaskResponse, error) {
	if err := validateRequest(req); err != nil {
		return model.TaskResponse{}, err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskResponse{}, err
	}
	if err := s.policy.Check(actor, policy.UpdateTask, task); err != nil {
		return model.TaskResponse{}, err
	}

	update := model.TaskUpdate{
		Title:       &req.Title,
		Description: &req.Description,
		Completed:   req.Completed,
		UpdatedAt:   s.now().UTC(),
	}

	if req.UserID != "" {
		owner, err := model.ParseID(req.UserID)
		if err != nil {
			return model.TaskResponse{}, ErrInvalidOwner
		}
		if owner != task.UserID {
			if err := s.policy.Check(actor, policy.AssignTask, task); err != nil {
				return model.TaskResponse{}, err
			}
			if err := s.ownerExists(ctx, owner); err != nil {
				return model.TaskResponse{}, err
			}
			update.UserID = &owner
		}
	}

	if err := s.apply(ctx, id, update); err != nil {
		return model.TaskResponse{}, err
	}

	task.Title = req.Title
	task.Description = req.Description
	if update.Completed != nil {
		task.Completed = *update.Completed
	}
	if update.UserID != nil {
		task.UserID = *update.UserID
	}
	task.UpdatedAt = update.UpdatedAt
	return model.NewTaskResponse(task), nil
}

// Complete marks the task done.
func (s *TaskService) Complete(ctx context.Context, actor *model.User, id model.ID) (model.TaskResponse, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskResponse{}, err
	}
	if err := s.policy.Check(actor, policy.CompleteTask, task); err != nil {
		return model.TaskResponse{}, err
	}

	done := true
	update := model.TaskUpdate{Completed: &done, UpdatedAt: s.now().UTC()}
	if err := s.apply(ctx, id, update); err != nil {
		return model.TaskResponse{}, err
	}

	task.Completed = true
	task.UpdatedAt = update.UpdatedAt
	return model.NewTaskResponse(task), nil
}

// Delete removes the task.
func (s *TaskService) Delete(ctx context.Context, actor *model.User, id model.ID) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Check(actor, policy.DeleteTask, task); err != nil {
		return err
	}

	deleted, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TaskService) load(ctx context.Context, id model.ID) (*model.Task, error) {
	task, err := s.store.FindTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *TaskService) apply(ctx context.Context, id model.ID, update model.TaskUpdate) error {
	matched, err := s.store.UpdateTask(ctx, id, update)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TaskService) ownerExists(ctx context.Context, owner model.ID) error {
	_, err := s.store.FindUserByID(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOwner
		}
		return fmt.Errorf("find task owner: %w", err)
	}
	return nil
}
