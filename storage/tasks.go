package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"board-api/domain"
)

const taskColumns = "id, project_id, title, description, status, priority, sort_order, due_date, created_at, updated_at, is_deleted, deleted_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t         domain.Task
		dueDate   sql.NullString
		deletedAt sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.Project, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Order, &dueDate, &t.CreatedAt, &t.UpdatedAt, &t.IsDeleted, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	if dueDate.Valid && dueDate.String != "" {
		d, err := domain.ParseDate(dueDate.String)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &d
	}
	if deletedAt.Valid {
		ts := deletedAt.Time
		t.DeletedAt = &ts
	}
	return t, nil
}

// CreateTask validates and persists a new task. Absent fields take their
// defaults: the BOARD project, status todo, priority medium and the next
// order slot at the end of the (project, status) column. The order lookup
// and the insert share one transaction so concurrent creators in the same
// column rarely collide; a collision only dents the sort hint.
func (s *Store) CreateTask(ctx context.Context, d TaskDraft) (domain.Task, error) {
	if strings.TrimSpace(d.Title) == "" {
		return domain.Task{}, ErrTitleRequired
	}
	status := d.Status
	if status == "" {
		status = domain.StatusTodo
	}
	if !status.Valid() {
		return domain.Task{}, ErrInvalidStatus
	}
	priority := d.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, ErrInvalidPriority
	}

	var project domain.Project
	var err error
	if d.Project != nil {
		project, err = s.GetProject(ctx, *d.Project)
	} else {
		project, err = s.DefaultProject(ctx)
	}
	if err != nil {
		return domain.Task{}, err
	}

	var dueDate any
	if d.DueDate != nil {
		dueDate = d.DueDate.String()
	}

	t := domain.Task{
		Project:     project.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     d.DueDate,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		order := 0
		if d.Order != nil {
			order = *d.Order
		} else {
			var err error
			if order, err = s.nextOrder(ctx, tx, project.ID, status); err != nil {
				return err
			}
		}
		ts := now()
		id, err := s.insertID(ctx, tx,
			"INSERT INTO tasks (project_id, title, description, status, priority, sort_order, due_date, created_at, updated_at, is_deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			project.ID, d.Title, d.Description, status, priority, order, dueDate, ts, ts, false)
		if err != nil {
			return err
		}
		t.ID = id
		t.Order = order
		t.CreatedAt = ts
		t.UpdatedAt = ts
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// nextOrder appends to the end of a (project, status) column: 0 for an empty
// column, otherwise one past the highest order among active tasks.
func (s *Store) nextOrder(ctx context.Context, tx *sql.Tx, projectID int64, status domain.Status) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx, s.rebind(
		"SELECT COALESCE(MAX(sort_order) + 1, 0) FROM tasks WHERE project_id = ? AND status = ? AND is_deleted = ?"),
		projectID, status, false).Scan(&order)
	return order, err
}

// GetTask fetches a task by id within the given lifecycle scope: deleted
// selects the trash, otherwise only active tasks are visible.
func (s *Store) GetTask(ctx context.Context, id int64, deleted bool) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND is_deleted = ?"), id, deleted)
	return scanTask(row)
}

// taskOrderings whitelists the sortable columns exposed to clients.
var taskOrderings = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"order":      "sort_order",
	"priority":   "priority",
	"title":      "title",
}

const defaultTaskOrdering = "project_id, status, sort_order, created_at DESC"

func orderClause(ordering string) string {
	desc := strings.HasPrefix(ordering, "-")
	col, ok := taskOrderings[strings.TrimPrefix(ordering, "-")]
	if !ok {
		// Unknown ordering fields fall back to the board default.
		return defaultTaskOrdering
	}
	if desc {
		return col + " DESC"
	}
	return col
}

func taskWhere(f TaskFilter) (string, []any) {
	where := []string{"is_deleted = ?"}
	args := []any{f.Deleted}
	if f.Project != nil {
		where = append(where, "project_id = ?")
		args = append(args, *f.Project)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat)
	}
	return " WHERE " + joinAnd(where), args
}

// ListTasks returns tasks matching the filter in board order, or in the
// requested ordering when it names a sortable column.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	clause, args := taskWhere(f)
	query := "SELECT " + taskColumns + " FROM tasks" + clause + " ORDER BY "
	if f.Ordering != "" {
		query += orderClause(f.Ordering)
	} else {
		query += defaultTaskOrdering
	}
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasks counts tasks matching the filter, ignoring pagination.
func (s *Store) CountTasks(ctx context.Context, f TaskFilter) (int, error) {
	clause, args := taskWhere(f)
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM tasks"+clause), args...).Scan(&count)
	return count, err
}

// UpdateTask applies a partial update to an active task and returns the
// updated row. Deleted tasks are out of scope and report ErrNotFound.
func (s *Store) UpdateTask(ctx context.Context, id int64, ch TaskChanges) (domain.Task, error) {
	if _, err := s.GetTask(ctx, id, false); err != nil {
		return domain.Task{}, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if ch.Title != nil {
		if strings.TrimSpace(*ch.Title) == "" {
			return domain.Task{}, ErrTitleRequired
		}
		sets = append(sets, "title = ?")
		args = append(args, *ch.Title)
	}
	if ch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *ch.Description)
	}
	if ch.Project != nil {
		if _, err := s.GetProject(ctx, *ch.Project); err != nil {
			return domain.Task{}, err
		}
		sets = append(sets, "project_id = ?")
		args = append(args, *ch.Project)
	}
	if ch.Status != nil {
		if !ch.Status.Valid() {
			return domain.Task{}, ErrInvalidStatus
		}
		sets = append(sets, "status = ?")
		args = append(args, *ch.Status)
	}
	if ch.Priority != nil {
		if !ch.Priority.Valid() {
			return domain.Task{}, ErrInvalidPriority
		}
		sets = append(sets, "priority = ?")
		args = append(args, *ch.Priority)
	}
	if ch.Order != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *ch.Order)
	}
	if ch.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, ch.DueDate.String())
	} else if ch.ClearDueDate {
		sets = append(sets, "due_date = ?")
		args = append(args, nil)
	}

	args = append(args, id)
	_, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return domain.Task{}, err
	}
	return s.GetTask(ctx, id, false)
}

// DeleteTask implements the dual-meaning delete verb: an active task moves to
// the trash (is_deleted plus deleted_at, nothing else touched), a task that
// is already trashed is removed for good.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	var isDeleted bool
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT is_deleted FROM tasks WHERE id = ?"), id).Scan(&isDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if !isDeleted {
		_, err = s.db.ExecContext(ctx, s.rebind(
			"UPDATE tasks SET is_deleted = ?, deleted_at = ? WHERE id = ?"), true, now(), id)
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind("DELETE FROM tasks WHERE id = ?"), id)
	return err
}

// RestoreTask moves a trashed task back to its board column, appending it at
// the end rather than reclaiming its old slot. Tasks outside the trash are
// not found. The order lookup and the update share one transaction.
func (s *Store) RestoreTask(ctx context.Context, id int64) (domain.Task, error) {
	var restored domain.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(
			"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND is_deleted = ?"), id, true)
		t, err := scanTask(row)
		if err != nil {
			return err
		}

		order, err := s.nextOrder(ctx, tx, t.Project, t.Status)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			"UPDATE tasks SET is_deleted = ?, deleted_at = ?, sort_order = ? WHERE id = ?"),
			false, nil, order, id); err != nil {
			return err
		}

		t.IsDeleted = false
		t.DeletedAt = nil
		t.Order = order
		restored = t
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return restored, nil
}

// HardDeleteTask permanently removes a trashed task. Tasks outside the trash
// are not found.
func (s *Store) HardDeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		"DELETE FROM tasks WHERE id = ? AND is_deleted = ?"), id, true)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderTask stages a status and/or order change for one active task and
// persists only the fields that differ. It reports whether anything was
// written; a task missing from the active scope is skipped, not an error.
func (s *Store) ReorderTask(ctx context.Context, id int64, status domain.Status, order *int) (bool, error) {
	t, err := s.GetTask(ctx, id, false)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var (
		sets []string
		args []any
	)
	if t.Status != status {
		sets = append(sets, "status = ?")
		args = append(args, status)
	}
	if order != nil && *order != t.Order {
		sets = append(sets, "sort_order = ?")
		args = append(args, *order)
	}
	if len(sets) == 0 {
		return false, nil
	}

	args = append(args, id)
	if _, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...); err != nil {
		return false, err
	}
	return true, nil
}
