package todo

import (
	"time"

	"github.com/splax/todo/internal/domain"
)

// Bucket names a due-date classification outcome.
type Bucket string

const (
	BucketOverdue   Bucket = "overdue"
	BucketDueToday  Bucket = "due_today"
	BucketDueLater  Bucket = "due_later"
	BucketCompleted Bucket = "completed"
)

// Buckets partitions one user's todos. Each slice keeps input order.
type Buckets struct {
	Overdue   []domain.Todo
	DueToday  []domain.Todo
	DueLater  []domain.Todo
	Completed []domain.Todo
}

// Len returns the total number of classified todos.
func (b Buckets) Len() int {
	return len(b.Overdue) + len(b.DueToday) + len(b.DueLater) + len(b.Completed)
}

// BucketOf classifies a single todo against the calendar date of now.
// Completed todos are always BucketCompleted.
func BucketOf(t domain.Todo, now time.Time) Bucket {
	if t.Completed {
		return BucketCompleted
	}
	today := domain.NormalizeDate(now)
	due := domain.NormalizeDate(t.DueDate)
	switch {
	case due.Before(today):
		return BucketOverdue
	case due.Equal(today):
		return BucketDueToday
	default:
		return BucketDueLater
	}
}

// Classify is a stable partition of todos into the four buckets. The input
// slice is not modified and every returned slice is non-nil.
func Classify(todos []domain.Todo, now time.Time) Buckets {
	out := Buckets{
		Overdue:   make([]domain.Todo, 0),
		DueToday:  make([]domain.Todo, 0),
		DueLater:  make([]domain.Todo, 0),
		Completed: make([]domain.Todo, 0),
	}
	for _, t := range todos {
		switch BucketOf(t, now) {
		case BucketCompleted:
			out.Completed = append(out.Completed, t)
		case BucketOverdue:
			out.Overdue = append(out.Overdue, t)
		case BucketDueToday:
			out.DueToday = append(out.DueToday, t)
		default:
			out.DueLater = append(out.DueLater, t)
		}
	}
	return out
}
