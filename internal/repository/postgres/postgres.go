package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.TodoRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, first_name, last_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, first_name, last_name, email, password_hash, created_at FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	const query = `SELECT id, first_name, last_name, email, password_hash, created_at FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateTodo inserts a todo.
func (r *Repository) CreateTodo(ctx context.Context, todo *domain.Todo) error {
	const query = `INSERT INTO todos (id, owner_id, title, due_date, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	// due_date is a DATE: bind the calendar day of DueDate in its own zone.
	dueDate := domain.NormalizeDate(todo.DueDate)
	_, err := r.pool.Exec(ctx, query, todo.ID, todo.OwnerID, todo.Title, dueDate, todo.Completed, todo.CreatedAt, todo.UpdatedAt)
	return err
}

// GetTodoByID fetches a todo regardless of owner.
func (r *Repository) GetTodoByID(ctx context.Context, id string) (*domain.Todo, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	const query = `SELECT id, owner_id, title, due_date, completed, created_at, updated_at FROM todos WHERE id = $1`
	return scanTodo(r.pool.QueryRow(ctx, query, id))
}

// ListTodosByOwner returns the owner's todos in creation order.
func (r *Repository) ListTodosByOwner(ctx context.Context, ownerID string) ([]domain.Todo, error) {
	const query = `SELECT id, owner_id, title, due_date, completed, created_at, updated_at
		FROM todos
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]domain.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *todo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return todos, nil
}

// SetTodoCompleted flips the completion flag and returns the stored row.
func (r *Repository) SetTodoCompleted(ctx context.Context, id string, completed bool, updatedAt time.Time) (*domain.Todo, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	const query = `UPDATE todos SET completed = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, owner_id, title, due_date, completed, created_at, updated_at`
	return scanTodo(r.pool.QueryRow(ctx, query, id, completed, updatedAt))
}

// DeleteTodo removes a todo.
func (r *Repository) DeleteTodo(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	const query = `DELETE FROM todos WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanTodo(row pgx.Row) (*domain.Todo, error) {
	var t domain.Todo
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.DueDate, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	t.DueDate = domain.NormalizeDate(t.DueDate)
	return &t, nil
}

// validID rejects ids that cannot match a UUID column, which would otherwise
// surface as a Postgres cast error instead of a missing row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
