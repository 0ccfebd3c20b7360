// Package policy decides whether a user may perform an action on a resource.
//
// Rules are evaluated in a fixed order: the owner of a resource may always
// perform self-service actions on it, otherwise the actor's role must be in
// the action's required-role set, otherwise access is denied.
package policy

import (
	"errors"
	"slices"

	"github.com/taskguard/taskguard-go/internal/model"
)

// ErrForbidden is returned by Decision.Err for every denial.
var ErrForbidden = errors.New("forbidden")

// Action names an operation guarded by the engine.
type Action string

const (
	ReadSelf       Action = "users.read_self"
	ListUsers      Action = "users.list"
	ReadUser       Action = "users.read"
	UpdateUser     Action = "users.update"
	DeactivateUser Action = "users.deactivate"
	DeleteUser     Action = "users.delete"
	AssignRole     Action = "users.assign_role"

	ListAllTasks Action = "tasks.list_all"
	CreateTask   Action = "tasks.create"
	AssignTask   Action = "tasks.assign"
	ReadTask     Action = "tasks.read"
	UpdateTask   Action = "tasks.update"
	CompleteTask Action = "tasks.complete"
	DeleteTask   Action = "tasks.delete"
)

// Deny reasons.
const (
	ReasonForbidden       = "forbidden"
	ReasonUnauthenticated = "unauthenticated"
	ReasonUnknownAction   = "unknown action"
)

// Resource is anything owned by a user.
type Resource interface {
	OwnerID() model.ID
}

// Rule declares how an action is granted. An empty Roles set means no role
// grants the action; only self-service can.
type Rule struct {
	SelfService bool
	Roles       []model.Role
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil for a permit and an error wrapping ErrForbidden otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError carries the reason for a denial.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "forbidden: " + e.Reason }

func (e *DeniedError) Is(target error) bool { return target == ErrForbidden }

func permit() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// DefaultRules is the rule table used by New.
func DefaultRules() map[Action]Rule {
	admin := []model.Role{model.RoleAdmin}
	return map[Action]Rule{
		ReadSelf:       {SelfService: true},
		ListUsers:      {Roles: admin},
		ReadUser:       {SelfService: true, Roles: admin},
		UpdateUser:     {SelfService: true, Roles: admin},
		DeactivateUser: {SelfService: true, Roles: admin},
		DeleteUser:     {Roles: admin},
		AssignRole:     {Roles: admin},

		ListAllTasks: {Roles: admin},
		CreateTask:   {Roles: []model.Role{model.RoleAdmin, model.RoleEditor}},
		AssignTask:   {Roles: admin},
		ReadTask:     {SelfService: true, Roles: admin},
		UpdateTask:   {SelfService: true, Roles: admin},
		CompleteTask: {SelfService: true, Roles: admin},
		DeleteTask:   {Roles: admin},
	}
}

// Engine evaluates actions against a rule table. It is safe for concurrent
// use once built.
type Engine struct {
	rules map[Action]Rule
}

// New creates an Engine with DefaultRules.
func New() *Engine {
	return &Engine{rules: DefaultRules()}
}

// WithRule returns a copy of the engine with rule set for action.
func (e *Engine) WithRule(action Action, rule Rule) *Engine {
	rules := make(map[Action]Rule, len(e.rules)+1)
	for a, r := range e.rules {
		rules[a] = r
	}
	rules[action] = rule
	return &Engine{rules: rules}
}

// Rule returns the rule for action.
func (e *Engine) Rule(action Action) (Rule, bool) {
	r, ok := e.rules[action]
	return r, ok
}

// Authorize decides whether actor may perform action on resource.
// resource may be nil for actions that do not target an existing document.
func (e *Engine) Authorize(actor *model.User, action Action, resource Resource) Decision {
	if actor == nil || actor.ID.IsZero() {
		return deny(ReasonUnauthenticated)
	}

	rule, ok := e.rules[action]
	if !ok {
		return deny(ReasonUnknownAction)
	}

	if rule.SelfService && resource != nil && resource.OwnerID() == actor.ID {
		return permit()
	}

	if slices.Contains(rule.Roles, actor.Role) {
		return permit()
	}

	return deny(ReasonForbidden)
}

// Check is Authorize returning an error, for service code.
func (e *Engine) Check(actor *model.User, action Action, resource Resource) error {
	return e.Authorize(actor, action, resource).Err()
}
