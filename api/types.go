package api

import (
	"context"
	"encoding/json"

	"github.com/bytedance/sonic"

	"board-api/domain"
	"board-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateTask(ctx context.Context, d storage.TaskDraft) (domain.Task, error)
	GetTask(ctx context.Context, id int64, deleted bool) (domain.Task, error)
	ListTasks(ctx context.Context, f storage.TaskFilter) ([]domain.Task, error)
	CountTasks(ctx context.Context, f storage.TaskFilter) (int, error)
	UpdateTask(ctx context.Context, id int64, ch storage.TaskChanges) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	RestoreTask(ctx context.Context, id int64) (domain.Task, error)
	HardDeleteTask(ctx context.Context, id int64) error
	ReorderTask(ctx context.Context, id int64, status domain.Status, order *int) (bool, error)
	ListProjects(ctx context.Context, f storage.ProjectFilter) ([]domain.Project, error)
	GetProject(ctx context.Context, id int64) (domain.Project, error)
	CreateProject(ctx context.Context, d storage.ProjectDraft) (domain.Project, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

const maxBodySize = 256 * 1024 // 256 KiB

// optionalDate distinguishes an absent due_date from an explicit null, which
// clears the stored value.
type optionalDate struct {
	Set   bool
	Value *string
}

func (o *optionalDate) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// taskPayload is the request body for task create and update.
type taskPayload struct {
	Project     *int64       `json:"project"`
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Status      *string      `json:"status"`
	Priority    *string      `json:"priority"`
	Order       *int         `json:"order"`
	DueDate     optionalDate `json:"due_date"`
}

// reorderItem is one entry of the bulk reorder body. Order stays raw so a
// malformed value skips the item instead of failing the batch.
type reorderItem struct {
	ID     int64           `json:"id"`
	Status string          `json:"status"`
	Order  json.RawMessage `json:"order"`
}

type bulkReorderResponse struct {
	Updated []int64 `json:"updated"`
}

// projectPayload is the request body for project creation.
type projectPayload struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

// page is the pagination envelope for list responses.
type page struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}
