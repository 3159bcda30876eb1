package todo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
)

type stubTodoRepository struct {
	mu        sync.Mutex
	todos     map[string]domain.Todo
	order     []string
	getErr    error
	listErr   error
	createErr error
	deleted   []string
}

func newStubTodoRepository(todos ...domain.Todo) *stubTodoRepository {
	repo := &stubTodoRepository{todos: make(map[string]domain.Todo)}
	for _, t := range todos {
		repo.todos[t.ID] = t
		repo.order = append(repo.order, t.ID)
	}
	return repo
}

func (s *stubTodoRepository) CreateTodo(ctx context.Context, todo *domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.todos[todo.ID] = *todo
	s.order = append(s.order, todo.ID)
	return nil
}

func (s *stubTodoRepository) GetTodoByID(ctx context.Context, id string) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	todo, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &todo, nil
}

func (s *stubTodoRepository) ListTodosByOwner(ctx context.Context, ownerID string) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Todo, 0)
	for _, id := range s.order {
		if todo, ok := s.todos[id]; ok && todo.OwnerID == ownerID {
			out = append(out, todo)
		}
	}
	return out, nil
}

func (s *stubTodoRepository) SetTodoCompleted(ctx context.Context, id string, completed bool, updatedAt time.Time) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	todo, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	todo.Completed = completed
	todo.UpdatedAt = updatedAt
	s.todos[id] = todo
	return &todo, nil
}

func (s *stubTodoRepository) DeleteTodo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.todos[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.todos, id)
	s.deleted = append(s.deleted, id)
	return nil
}

var errStoreDown = errors.New("store down")

var fixedNow = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo repository.TodoRepository) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, log, time.UTC).WithClock(func() time.Time { return fixedNow })
}
