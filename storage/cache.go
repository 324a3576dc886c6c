package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type backend interface {
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	CreateTask(ctx context.Context, d TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, ch TaskChanges) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	RestoreTask(ctx context.Context, id int64) (domain.Task, error)
	HardDeleteTask(ctx context.Context, id int64) error
	ReorderTask(ctx context.Context, id int64, status domain.Status, order *int) (bool, error)
}

const (
	activeListKey = "tasks:active"
	trashListKey  = "tasks:trash"
)

// Cache wraps a Store with a Redis-backed cache for the two hot list reads,
// the full active board and the full trash. Filtered or paginated listings
// bypass the cache; any task mutation evicts both keys.
type Cache struct {
	*Store
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

func listCacheKey(f TaskFilter) (string, bool) {
	plain := f.Project == nil && f.Status == "" && f.Priority == "" &&
		f.Search == "" && f.Ordering == "" && f.Limit == 0 && f.Offset == 0
	if !plain {
		return "", false
	}
	if f.Deleted {
		return trashListKey, true
	}
	return activeListKey, true
}

func (c *Cache) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	key, cacheable := listCacheKey(f)
	if cacheable {
		if tasks, ok := c.loadList(ctx, key); ok {
			return tasks, nil
		}
	}

	tasks, err := c.base.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.storeList(ctx, key, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, d TaskDraft) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, d)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id int64, ch TaskChanges) (domain.Task, error) {
	t, err := c.base.UpdateTask(ctx, id, ch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) RestoreTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := c.base.RestoreTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return t, nil
}

func (c *Cache) HardDeleteTask(ctx context.Context, id int64) error {
	if err := c.base.HardDeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) ReorderTask(ctx context.Context, id int64, status domain.Status, order *int) (bool, error) {
	updated, err := c.base.ReorderTask(ctx, id, status, order)
	if err != nil {
		return updated, err
	}
	if updated {
		c.evict(ctx)
	}
	return updated, nil
}

func (c *Cache) loadList(ctx context.Context, key string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeList(ctx context.Context, key string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, activeListKey, trashListKey).Result()
}
