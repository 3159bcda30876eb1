package todo

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/splax/todo/internal/domain"
)

func ids(todos []domain.Todo) []string {
	out := make([]string, 0, len(todos))
	for _, t := range todos {
		out = append(out, t.ID)
	}
	return out
}

func TestClassifyScenarios(t *testing.T) {
	today := fixedNow
	todos := []domain.Todo{
		{ID: "milk", Title: "Buy milk", DueDate: date(2024, time.June, 15)},
		{ID: "old", Title: "Old task", DueDate: date(2024, time.June, 14)},
		{ID: "future", Title: "Future task", DueDate: date(2024, time.June, 16)},
		{ID: "done-late", Title: "Done but late", DueDate: date(2024, time.January, 1), Completed: true},
		{ID: "done-future", Title: "Done early", DueDate: date(2025, time.January, 1), Completed: true},
	}

	got := Classify(todos, today)

	want := map[string][]string{
		"overdue":   {"old"},
		"dueToday":  {"milk"},
		"dueLater":  {"future"},
		"completed": {"done-late", "done-future"},
	}
	gotIDs := map[string][]string{
		"overdue":   ids(got.Overdue),
		"dueToday":  ids(got.DueToday),
		"dueLater":  ids(got.DueLater),
		"completed": ids(got.Completed),
	}
	if diff := cmp.Diff(want, gotIDs); diff != "" {
		t.Fatalf("bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	got := Classify(nil, fixedNow)
	if got.Overdue == nil || got.DueToday == nil || got.DueLater == nil || got.Completed == nil {
		t.Fatalf("expected non-nil empty buckets, got %+v", got)
	}
	if got.Len() != 0 {
		t.Fatalf("expected no todos, got %d", got.Len())
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	earlyMorning := time.Date(2024, time.June, 15, 0, 5, 0, 0, loc)
	lateNight := time.Date(2024, time.June, 15, 23, 55, 0, 0, loc)
	todo := domain.Todo{ID: "a", DueDate: time.Date(2024, time.June, 15, 18, 0, 0, 0, time.UTC)}

	for _, now := range []time.Time{earlyMorning, lateNight} {
		if got := BucketOf(todo, now); got != BucketDueToday {
			t.Fatalf("BucketOf at %s = %s, want %s", now, got, BucketDueToday)
		}
	}
}

func TestClassifyPartitionsStablyAndIsPure(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	todos := make([]domain.Todo, 0, 200)
	for i := 0; i < 200; i++ {
		todos = append(todos, domain.Todo{
			ID:        fmt.Sprintf("todo-%03d", i),
			DueDate:   fixedNow.AddDate(0, 0, rng.Intn(11)-5),
			Completed: rng.Intn(4) == 0,
		})
	}
	snapshot := append([]domain.Todo(nil), todos...)

	first := Classify(todos, fixedNow)
	second := Classify(todos, fixedNow)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("classification not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(snapshot, todos); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
	if first.Len() != len(todos) {
		t.Fatalf("expected %d classified todos, got %d", len(todos), first.Len())
	}

	seen := make(map[string]Bucket, len(todos))
	check := func(bucket Bucket, items []domain.Todo) {
		prev := ""
		for _, item := range items {
			if _, dup := seen[item.ID]; dup {
				t.Fatalf("todo %s placed in more than one bucket", item.ID)
			}
			seen[item.ID] = bucket
			if item.ID <= prev {
				t.Fatalf("bucket %s lost input order at %s", bucket, item.ID)
			}
			prev = item.ID
		}
	}
	check(BucketOverdue, first.Overdue)
	check(BucketDueToday, first.DueToday)
	check(BucketDueLater, first.DueLater)
	check(BucketCompleted, first.Completed)

	for _, todo := range todos {
		bucket, ok := seen[todo.ID]
		if !ok {
			t.Fatalf("todo %s missing from buckets", todo.ID)
		}
		if todo.Completed && bucket != BucketCompleted {
			t.Fatalf("completed todo %s classified as %s", todo.ID, bucket)
		}
		if !todo.Completed && domain.NormalizeDate(todo.DueDate).Equal(domain.NormalizeDate(fixedNow)) && bucket != BucketDueToday {
			t.Fatalf("todo %s due today classified as %s", todo.ID, bucket)
		}
	}
}
