package todo

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
	"github.com/splax/todo/internal/validation"
)

// CreateInput encapsulates todo creation attributes.
type CreateInput struct {
	Title   string `json:"title" validate:"required,min=5"`
	DueDate string `json:"dueDate" validate:"required"`
}

// Service runs the todo lifecycle on behalf of an authenticated actor.
type Service struct {
	todos  repository.TodoRepository
	logger *slog.Logger
	now    func() time.Time
}

// New returns a todo service. "Today" is evaluated in loc.
func New(todos repository.TodoRepository, logger *slog.Logger, loc *time.Location) Service {
	if loc == nil {
		loc = time.Local
	}
	return Service{
		todos:  todos,
		logger: logger,
		now:    func() time.Time { return time.Now().In(loc) },
	}
}

// WithClock returns a copy of the service reading the current time from now.
func (s Service) WithClock(now func() time.Time) Service {
	s.now = now
	return s
}

// Now returns the service clock reading.
func (s Service) Now() time.Time {
	return s.now()
}

// Create validates input and stores a new incomplete todo owned by actorID.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.Todo, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	input.Title = strings.TrimSpace(input.Title)
	input.DueDate = strings.TrimSpace(input.DueDate)

	err := validation.Struct(input)
	var verr *domain.ValidationError
	if err != nil && !errors.As(err, &verr) {
		return nil, err
	}
	var due time.Time
	if input.DueDate != "" {
		parsed, perr := domain.ParseDate(input.DueDate)
		if perr != nil {
			err = validation.Merge(err, validation.Field("dueDate", "date"))
		}
		due = parsed
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	todo := &domain.Todo{
		ID:        uuid.NewString(),
		OwnerID:   actorID,
		Title:     input.Title,
		DueDate:   due,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.todos.CreateTodo(ctx, todo); err != nil {
		return nil, domain.WrapStore("create todo", err)
	}
	s.log().Info("todo created", "todo_id", todo.ID, "user_id", actorID)
	return todo, nil
}

// Get returns a todo the actor owns.
func (s Service) Get(ctx context.Context, actorID, todoID string) (*domain.Todo, error) {
	return AuthorizeOrFail(ctx, actorID, todoID, s.todos)
}

// SetCompletion updates the completion flag of a todo the actor owns.
// A nil completed value means the client did not send a boolean.
func (s Service) SetCompletion(ctx context.Context, actorID, todoID string, completed *bool) (*domain.Todo, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	if completed == nil {
		return nil, validation.Fail("completed", "boolean")
	}
	todo, err := AuthorizeOrFail(ctx, actorID, todoID, s.todos)
	if err != nil {
		return nil, err
	}
	updated, err := s.todos.SetTodoCompleted(ctx, todo.ID, *completed, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapStore("update todo", err)
	}
	s.log().Info("todo completion set", "todo_id", updated.ID, "user_id", actorID, "completed", updated.Completed)
	return updated, nil
}

// Delete removes a todo the actor owns and reports true on success.
func (s Service) Delete(ctx context.Context, actorID, todoID string) (bool, error) {
	if _, err := s.Remove(ctx, actorID, todoID); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes a todo the actor owns and returns it as it was stored.
func (s Service) Remove(ctx context.Context, actorID, todoID string) (*domain.Todo, error) {
	todo, err := AuthorizeOrFail(ctx, actorID, todoID, s.todos)
	if err != nil {
		return nil, err
	}
	if err := s.todos.DeleteTodo(ctx, todo.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapStore("delete todo", err)
	}
	s.log().Info("todo deleted", "todo_id", todo.ID, "user_id", actorID)
	return todo, nil
}

// ListForOwner returns every todo owned by the actor.
func (s Service) ListForOwner(ctx context.Context, actorID string) ([]domain.Todo, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	todos, err := s.todos.ListTodosByOwner(ctx, actorID)
	if err != nil {
		return nil, domain.WrapStore("list todos", err)
	}
	return todos, nil
}

// Grouped lists the actor's todos and classifies them at the service clock.
func (s Service) Grouped(ctx context.Context, actorID string) (Buckets, error) {
	todos, err := s.ListForOwner(ctx, actorID)
	if err != nil {
		return Buckets{}, err
	}
	return Classify(todos, s.now()), nil
}

func (s Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}
