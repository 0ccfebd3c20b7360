package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/taskguard/taskguard-go/internal/model"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(24)     NOT NULL PRIMARY KEY,
		name          VARCHAR(100) NOT NULL,
		email         VARCHAR(254) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL,
		active        BOOLEAN      NOT NULL DEFAULT TRUE,
		token_version BIGINT       NOT NULL DEFAULT 0,
		created_at    DATETIME(6)  NOT NULL,
		updated_at    DATETIME(6)  NOT NULL,
		UNIQUE KEY users_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          CHAR(24)     NOT NULL PRIMARY KEY,
		title       VARCHAR(200) NOT NULL,
		description TEXT         NOT NULL,
		user_id     CHAR(24)     NOT NULL,
		completed   BOOLEAN      NOT NULL DEFAULT FALSE,
		created_at  DATETIME(6)  NOT NULL,
		updated_at  DATETIME(6)  NOT NULL,
		KEY tasks_user_id (user_id)
	)`,
}

// MySQLStore keeps the users and tasks documents in MySQL tables, one row
// per document, with IDs stored in their hex form.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection pool with the given DSN and creates
// the tables if they do not exist.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := openMySQL(dsn)
	if err != nil {
		return nil, err
	}

	s := &MySQLStore{db: db}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// openMySQL configures the pool. Affected-row counts must report matched
// rows, not changed rows, so an update that writes identical values still
// counts as found.
func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("repository: mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Migrate creates the users and tasks tables.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: mysql migrate: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("repository: mysql ping: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close(ctx context.Context) error {
	return s.db.Close()
}

const userColumns = `id, name, email, password_hash, role, active, token_version, created_at, updated_at`

func (s *MySQLStore) InsertUser(ctx context.Context, user *model.User) error {
	if user.ID.IsZero() {
		user.ID = model.NewID()
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID.Hex(), user.Name, user.Email, user.PasswordHash, string(user.Role),
		user.Active, user.TokenVersion, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *MySQLStore) FindUserByID(ctx context.Context, id model.ID) (*model.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.Hex())
}

func (s *MySQLStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user model.User
		id   string
		role string
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &role,
		&user.Active, &user.TokenVersion, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := model.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("repository: stored user id %q: %w", id, err)
	}
	user.ID = parsed
	user.Role = model.Role(role)
	return &user, nil
}

func (s *MySQLStore) findUser(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *MySQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *MySQLStore) UpdateUser(ctx context.Context, id model.ID, update model.UserUpdate) (int64, error) {
	query, args := userUpdateSQL(id, update)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicateEntryError(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return result.RowsAffected()
}

// userUpdateSQL builds the UPDATE statement for a UserUpdate.
func userUpdateSQL(id model.ID, u model.UserUpdate) (string, []any) {
	sets := []string{"updated_at = ?"}
	args := []any{u.UpdatedAt}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *u.Email)
	}
	if u.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *u.PasswordHash)
	}
	if u.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*u.Role))
	}
	if u.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *u.Active)
	}
	if u.BumpTokenVersion {
		sets = append(sets, "token_version = token_version + 1")
	}

	args = append(args, id.Hex())
	return "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?", args
}

func (s *MySQLStore) DeleteUser(ctx context.Context, id model.ID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.Hex())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const taskColumns = `id, title, description, user_id, completed, created_at, updated_at`

func (s *MySQLStore) InsertTask(ctx context.Context, task *model.Task) error {
	if task.ID.IsZero() {
		task.ID = model.NewID()
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		task.ID.Hex(), task.Title, task.Description, task.UserID.Hex(),
		task.Completed, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task  model.Task
		id    string
		owner string
	)
	if err := row.Scan(&id, &task.Title, &task.Description, &owner,
		&task.Completed, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if task.ID, err = model.ParseID(id); err != nil {
		return nil, fmt.Errorf("repository: stored task id %q: %w", id, err)
	}
	if task.UserID, err = model.ParseID(owner); err != nil {
		return nil, fmt.Errorf("repository: stored task owner %q: %w", owner, err)
	}
	return &task, nil
}

func (s *MySQLStore) FindTaskByID(ctx context.Context, id model.ID) (*model.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id.Hex()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *MySQLStore) ListTasks(ctx context.Context, owner *model.ID) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if owner != nil {
		query += ` WHERE user_id = ?`
		args = append(args, owner.Hex())
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *MySQLStore) UpdateTask(ctx context.Context, id model.ID, update model.TaskUpdate) (int64, error) {
	query, args := taskUpdateSQL(id, update)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// taskUpdateSQL builds the UPDATE statement for a TaskUpdate.
func taskUpdateSQL(id model.ID, u model.TaskUpdate) (string, []any) {
	sets := []string{"updated_at = ?"}
	args := []any{u.UpdatedAt}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.UserID != nil {
		sets = append(sets, "user_id = ?")
		args = append(args, u.UserID.Hex())
	}
	if u.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *u.Completed)
	}

	args = append(args, id.Hex())
	return "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?", args
}

func (s *MySQLStore) DeleteTask(ctx context.Context, id model.ID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.Hex())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// isDuplicateEntryError checks if a MySQL error is a duplicate entry error (code 1062).
func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
