package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type stubBackend struct {
	listCalls   int
	listFn      func(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	createFn    func(ctx context.Context, d TaskDraft) (domain.Task, error)
	deleteFn    func(ctx context.Context, id int64) error
	reorderFn   func(ctx context.Context, id int64, status domain.Status, order *int) (bool, error)
}

func (s *stubBackend) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	s.listCalls++
	if s.listFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listFn(ctx, f)
}

func (s *stubBackend) CreateTask(ctx context.Context, d TaskDraft) (domain.Task, error) {
	if s.createFn == nil {
		return domain.Task{}, errors.New("unexpected CreateTask call")
	}
	return s.createFn(ctx, d)
}

func (s *stubBackend) UpdateTask(context.Context, int64, TaskChanges) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected UpdateTask call")
}

func (s *stubBackend) DeleteTask(ctx context.Context, id int64) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteFn(ctx, id)
}

func (s *stubBackend) RestoreTask(context.Context, int64) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected RestoreTask call")
}

func (s *stubBackend) HardDeleteTask(context.Context, int64) error {
	return errors.New("unexpected HardDeleteTask call")
}

func (s *stubBackend) ReorderTask(ctx context.Context, id int64, status domain.Status, order *int) (bool, error) {
	if s.reorderFn == nil {
		return false, errors.New("unexpected ReorderTask call")
	}
	return s.reorderFn(ctx, id, status, order)
}

func newTestCache(t *testing.T, base backend) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, time.Minute)
}

func TestCacheListMissThenHit(t *testing.T) {
	expected := []domain.Task{{ID: 1, Title: "Write code", Status: domain.StatusTodo}}
	base := &stubBackend{
		listFn: func(context.Context, TaskFilter) ([]domain.Task, error) {
			return expected, nil
		},
	}
	cache := newTestCache(t, base)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tasks, err := cache.ListTasks(ctx, TaskFilter{})
		if err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
		if len(tasks) != 1 || tasks[0].ID != 1 {
			t.Fatalf("list %d: unexpected tasks %#v", i, tasks)
		}
	}
	if base.listCalls != 1 {
		t.Fatalf("expected a single backend call, got %d", base.listCalls)
	}
}

func TestCacheFilteredListBypassesCache(t *testing.T) {
	base := &stubBackend{
		listFn: func(context.Context, TaskFilter) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
	}
	cache := newTestCache(t, base)
	ctx := context.Background()

	f := TaskFilter{Search: "milk"}
	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(ctx, f); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if base.listCalls != 2 {
		t.Fatalf("expected filtered listings to bypass the cache, got %d calls", base.listCalls)
	}
}

func TestCacheEvictsOnWrite(t *testing.T) {
	base := &stubBackend{
		listFn: func(context.Context, TaskFilter) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		createFn: func(_ context.Context, d TaskDraft) (domain.Task, error) {
			return domain.Task{ID: 7, Title: d.Title}, nil
		},
	}
	cache := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx, TaskFilter{}); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := cache.CreateTask(ctx, TaskDraft{Title: "new"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.ListTasks(ctx, TaskFilter{}); err != nil {
		t.Fatalf("list after write: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("expected write to evict the cached list, got %d calls", base.listCalls)
	}
}

func TestCacheReorderEvictsOnlyWhenWritten(t *testing.T) {
	wrote := false
	base := &stubBackend{
		listFn: func(context.Context, TaskFilter) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		reorderFn: func(context.Context, int64, domain.Status, *int) (bool, error) {
			return wrote, nil
		},
	}
	cache := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx, TaskFilter{}); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	// A skipped item leaves the cache warm.
	if _, err := cache.ReorderTask(ctx, 1, domain.StatusDone, nil); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if _, err := cache.ListTasks(ctx, TaskFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected cache hit after skipped reorder, got %d calls", base.listCalls)
	}

	wrote = true
	if _, err := cache.ReorderTask(ctx, 1, domain.StatusDone, nil); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if _, err := cache.ListTasks(ctx, TaskFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.listCalls != 2 {
		t.Fatalf("expected eviction after written reorder, got %d calls", base.listCalls)
	}
}
