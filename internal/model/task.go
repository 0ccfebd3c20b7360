package model

import "time"

// Task represents a task document owned by exactly one user.
type Task struct {
	ID          ID        `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	UserID      ID        `bson:"user_id"`
	Completed   bool      `bson:"completed"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// OwnerID returns the owning user's ID.
func (t *Task) OwnerID() ID {
	if t == nil {
		return ID{}
	}
	return t.UserID
}

// TaskRequest is the body of POST /tasks and PUT /tasks/{id}.
// UserID defaults to the caller when empty.
type TaskRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	UserID      string `json:"user_id" validate:"omitempty,len=24,hexadecimal"`
	Completed   *bool  `json:"completed"`
}

// TaskUpdate lists the fields a store update writes. Nil fields are untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	UserID      *ID
	Completed   *bool
	UpdatedAt   time.Time
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTaskResponse renders a task for the API.
func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.Hex(),
		Title:       t.Title,
		Description: t.Description,
		UserID:      t.UserID.Hex(),
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTaskResponses renders a list of tasks, never returning nil.
func NewTaskResponses(tasks []Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i := range tasks {
		result[i] = NewTaskResponse(&tasks[i])
	}
	return result
}
