package repository

import (
	"context"
	"time"

	"github.com/splax/todo/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// TodoRepository persists todos. Lookups by id are not scoped to an owner;
// ownership is checked by the caller.
type TodoRepository interface {
	CreateTodo(ctx context.Context, todo *domain.Todo) error
	GetTodoByID(ctx context.Context, id string) (*domain.Todo, error)
	ListTodosByOwner(ctx context.Context, ownerID string) ([]domain.Todo, error)
	SetTodoCompleted(ctx context.Context, id string, completed bool, updatedAt time.Time) (*domain.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}

// SessionRevocations remembers signed-out session ids until their tokens expire.
type SessionRevocations interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
