package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/storage"
)

// Register wires up all API routes on the provided Echo instance. A nil
// Authenticator leaves the API open.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger, pageSize int) {
	if pageSize <= 0 {
		pageSize = 30
	}

	g := e.Group("/api")
	if auth != nil {
		g.Use(requireAuth(auth))
	}

	g.GET("/board/", getBoard())
	g.GET("/projects/", listProjects(store))
	g.POST("/projects/", createProject(store))
	g.GET("/projects/:id/", getProject(store))
	g.GET("/tasks/", listTasks(store, logger, pageSize))
	g.POST("/tasks/", createTask(store))
	g.GET("/tasks/trash/", listTrash(store, pageSize))
	g.POST("/tasks/bulk_reorder/", bulkReorder(store, logger))
	g.GET("/tasks/:id/", getTask(store))
	g.PUT("/tasks/:id/", updateTask(store, true))
	g.PATCH("/tasks/:id/", updateTask(store, false))
	g.DELETE("/tasks/:id/", deleteTask(store))
	g.POST("/tasks/:id/restore/", restoreTask(store))
	g.DELETE("/tasks/:id/hard-delete/", hardDeleteTask(store))

	e.GET("/healthz", healthz())
}

func requireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			return next(c)
		}
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, domain.Board())
	}
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}

func fieldError(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string][]string{field: {msg}})
}

func notFound(c echo.Context) error {
	return detail(c, http.StatusNotFound, "Not found.")
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}

// taskFilterFromQuery builds the list filter shared by the task list and
// trash endpoints.
func taskFilterFromQuery(c echo.Context, deleted bool) storage.TaskFilter {
	f := storage.TaskFilter{
		Deleted:  deleted,
		Status:   domain.Status(c.QueryParam("status")),
		Priority: domain.Priority(c.QueryParam("priority")),
		Search:   c.QueryParam("search"),
		Ordering: c.QueryParam("ordering"),
	}
	if raw := c.QueryParam("project"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.Project = &id
		}
	}
	return f
}

func listTasks(store Storage, logger *log.Logger, pageSize int) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newRequestMetrics(c.Request().Context(), logger, "/api/tasks")
		ctx := spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		f := taskFilterFromQuery(c, c.QueryParam("is_deleted") == "true")
		if raw := c.QueryParam("page"); raw != "" {
			err = paginatedList(c, store, f, raw, c.QueryParam("page_size"), pageSize)
			return err
		}

		tasks, listErr := store.ListTasks(ctx, f)
		if listErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(listErr)
			err = detail(c, http.StatusInternalServerError, listErr.Error())
			return err
		}
		metrics.SetItemsReturned(len(tasks))
		err = c.JSON(http.StatusOK, tasks)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func listTrash(store Storage, pageSize int) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := taskFilterFromQuery(c, true)
		pageParam := c.QueryParam("page")
		if pageParam == "" {
			pageParam = "1"
		}
		return paginatedList(c, store, f, pageParam, c.QueryParam("page_size"), pageSize)
	}
}

func paginatedList(c echo.Context, store Storage, f storage.TaskFilter, pageParam, sizeParam string, defaultSize int) error {
	ctx := c.Request().Context()

	pageNum, err := strconv.Atoi(pageParam)
	if err != nil || pageNum < 1 {
		return detail(c, http.StatusNotFound, "Invalid page.")
	}
	size := defaultSize
	if sizeParam != "" {
		if n, err := strconv.Atoi(sizeParam); err == nil && n > 0 {
			size = n
		}
	}

	count, err := store.CountTasks(ctx, f)
	if err != nil {
		c.Logger().Error(err)
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	f.Limit = size
	f.Offset = (pageNum - 1) * size
	if f.Offset > 0 && f.Offset >= count {
		return detail(c, http.StatusNotFound, "Invalid page.")
	}

	tasks, err := store.ListTasks(ctx, f)
	if err != nil {
		c.Logger().Error(err)
		return detail(c, http.StatusInternalServerError, err.Error())
	}

	resp := page{Count: count, Results: tasks}
	if f.Offset+len(tasks) < count {
		resp.Next = pageLink(c, pageNum+1)
	}
	if pageNum > 1 {
		resp.Previous = pageLink(c, pageNum-1)
	}
	return c.JSON(http.StatusOK, resp)
}

func pageLink(c echo.Context, pageNum int) *string {
	u := *c.Request().URL
	q := u.Query()
	q.Set("page", strconv.Itoa(pageNum))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}

func getTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		t, err := store.GetTask(c.Request().Context(), id, c.QueryParam("is_deleted") == "true")
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c)
		}
		if err != nil {
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, t)
	}
}

// validateTaskPayload maps the shared field checks to DRF-compatible error
// responses. It returns false when a response has already been written.
func validateTaskPayload(c echo.Context, p *taskPayload) (bool, error) {
	if p.Status != nil && !domain.Status(*p.Status).Valid() {
		return false, fieldError(c, "status", fmt.Sprintf("%q is not a valid choice.", *p.Status))
	}
	if p.Priority != nil && !domain.Priority(*p.Priority).Valid() {
		return false, fieldError(c, "priority", fmt.Sprintf("%q is not a valid choice.", *p.Priority))
	}
	if p.Order != nil && *p.Order < 0 {
		return false, fieldError(c, "order", "Ensure this value is greater than or equal to 0.")
	}
	if p.DueDate.Set && p.DueDate.Value != nil {
		if _, err := domain.ParseDate(*p.DueDate.Value); err != nil {
			return false, fieldError(c, "due_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		}
	}
	return true, nil
}

func createTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p taskPayload
		if err := decodeBody(c, &p); err != nil {
			return detail(c, http.StatusBadRequest, "Invalid body.")
		}
		if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
			return detail(c, http.StatusBadRequest, "Title is required.")
		}
		if ok, err := validateTaskPayload(c, &p); !ok {
			return err
		}

		d := storage.TaskDraft{
			Title:   *p.Title,
			Project: p.Project,
		}
		if p.Description != nil {
			d.Description = *p.Description
		}
		if p.Status != nil {
			d.Status = domain.Status(*p.Status)
		}
		if p.Priority != nil {
			d.Priority = domain.Priority(*p.Priority)
		}
		d.Order = p.Order
		if p.DueDate.Set && p.DueDate.Value != nil {
			parsed, _ := domain.ParseDate(*p.DueDate.Value)
			d.DueDate = &parsed
		}

		t, err := store.CreateTask(c.Request().Context(), d)
		switch {
		case errors.Is(err, storage.ErrTitleRequired):
			return detail(c, http.StatusBadRequest, "Title is required.")
		case errors.Is(err, storage.ErrNotFound):
			// The referenced project does not exist.
			return fieldError(c, "project", fmt.Sprintf("Invalid pk %d - object does not exist.", deref(p.Project)))
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func updateTask(store Storage, full bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		var p taskPayload
		if err := decodeBody(c, &p); err != nil {
			return detail(c, http.StatusBadRequest, "Invalid body.")
		}
		if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
			return detail(c, http.StatusBadRequest, "Title is required.")
		}
		if full && p.Title == nil {
			return detail(c, http.StatusBadRequest, "Title is required.")
		}
		if ok, err := validateTaskPayload(c, &p); !ok {
			return err
		}

		ch := storage.TaskChanges{
			Title:       p.Title,
			Description: p.Description,
			Project:     p.Project,
			Order:       p.Order,
		}
		if p.Status != nil {
			st := domain.Status(*p.Status)
			ch.Status = &st
		}
		if p.Priority != nil {
			pr := domain.Priority(*p.Priority)
			ch.Priority = &pr
		}
		if p.DueDate.Set {
			if p.DueDate.Value == nil {
				ch.ClearDueDate = true
			} else {
				parsed, _ := domain.ParseDate(*p.DueDate.Value)
				ch.DueDate = &parsed
			}
		}

		t, err := store.UpdateTask(c.Request().Context(), id, ch)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notFound(c)
		case errors.Is(err, storage.ErrTitleRequired):
			return detail(c, http.StatusBadRequest, "Title is required.")
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		err = store.DeleteTask(c.Request().Context(), id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notFound(c)
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func restoreTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		t, err := store.RestoreTask(c.Request().Context(), id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notFound(c)
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, t)
	}
}

func hardDeleteTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		err = store.HardDeleteTask(c.Request().Context(), id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return notFound(c)
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// bulkReorder applies a batch of {id, status, order} updates, one task at a
// time. Invalid or unknown items are skipped, never failed; the response
// lists the ids that were actually written, in input order.
func bulkReorder(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newRequestMetrics(c.Request().Context(), logger, "/api/tasks/bulk_reorder")
		ctx := spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		items := make([]reorderItem, 0, 16)
		if decodeErr := decodeBody(c, &items); decodeErr != nil {
			metrics.SetErrorStage("decode_request")
			err = detail(c, http.StatusBadRequest, "Invalid body.")
			return err
		}

		updated := make([]int64, 0, len(items))
		for _, item := range items {
			if item.ID == 0 {
				continue
			}
			status := domain.Status(item.Status)
			if !status.Valid() {
				continue
			}
			wrote, reorderErr := store.ReorderTask(ctx, item.ID, status, intFromRaw(item.Order))
			if reorderErr != nil {
				// Best effort: one bad item never fails the batch.
				if logger != nil {
					logger.WithFields(log.Fields{"task_id": item.ID, "error": reorderErr.Error()}).Warn("bulk reorder item failed")
				}
				continue
			}
			if wrote {
				updated = append(updated, item.ID)
			}
		}

		metrics.SetItemsReturned(len(updated))
		err = c.JSON(http.StatusOK, bulkReorderResponse{Updated: updated})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// intFromRaw extracts an integer order value; anything else (absent, null,
// fractional, string) means no order change for the item.
func intFromRaw(raw []byte) *int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func listProjects(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		projects, err := store.ListProjects(c.Request().Context(), storage.ProjectFilter{
			Key:    c.QueryParam("key"),
			Search: c.QueryParam("search"),
		})
		if err != nil {
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func getProject(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return notFound(c)
		}
		p, err := store.GetProject(c.Request().Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(c)
		}
		if err != nil {
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, p)
	}
}

func createProject(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var p projectPayload
		if err := decodeBody(c, &p); err != nil {
			return detail(c, http.StatusBadRequest, "Invalid body.")
		}
		if p.Key == "" {
			return fieldError(c, "key", "This field may not be blank.")
		}
		if len(p.Key) > domain.MaxProjectKeyLen {
			return fieldError(c, "key", "Ensure this field has no more than 16 characters.")
		}

		created, err := store.CreateProject(c.Request().Context(), storage.ProjectDraft{
			Name:        p.Name,
			Key:         p.Key,
			Description: p.Description,
		})
		switch {
		case errors.Is(err, storage.ErrKeyConflict):
			return fieldError(c, "key", "project with this key already exists.")
		case errors.Is(err, storage.ErrInvalidKey):
			return fieldError(c, "key", "This field may not be blank.")
		case err != nil:
			c.Logger().Error(err)
			return detail(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, created)
	}
}
