package todo

import (
	"context"
	"errors"
	"strings"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
)

// TodoFinder loads a todo by id without owner scoping.
type TodoFinder interface {
	GetTodoByID(ctx context.Context, id string) (*domain.Todo, error)
}

// CanView reports whether actorID owns t.
func CanView(actorID string, t domain.Todo) bool {
	return actorID != "" && t.OwnerID == actorID
}

// CanMutate reports whether actorID may update or delete t. Ownership is the
// only criterion.
func CanMutate(actorID string, t domain.Todo) bool {
	return CanView(actorID, t)
}

// AuthorizeOrFail loads todoID and checks the actor owns it. Existence is
// checked first, so a missing todo yields ErrNotFound even for a foreign
// actor, and an existing foreign todo yields ErrForbidden.
func AuthorizeOrFail(ctx context.Context, actorID, todoID string, store TodoFinder) (*domain.Todo, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return nil, domain.ErrNotFound
	}
	todo, err := store.GetTodoByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapStore("get todo", err)
	}
	if !CanMutate(actorID, *todo) {
		return nil, domain.ErrForbidden
	}
	return todo, nil
}
