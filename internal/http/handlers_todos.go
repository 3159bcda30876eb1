package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/service/todo"
	"github.com/splax/todo/internal/ws"
)

type todoPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

type groupedPayload struct {
	Overdue   []todoPayload `json:"overdueTodos"`
	DueToday  []todoPayload `json:"dueTodayTodos"`
	DueLater  []todoPayload `json:"dueLaterTodos"`
	Completed []todoPayload `json:"completedTodos"`
}

type todoEvent struct {
	Type string      `json:"type"`
	Todo todoPayload `json:"todo"`
}

func newTodoPayload(t domain.Todo) todoPayload {
	return todoPayload{ID: t.ID, Title: t.Title, DueDate: t.DueDateString(), Completed: t.Completed}
}

func newTodoPayloads(todos []domain.Todo) []todoPayload {
	out := make([]todoPayload, 0, len(todos))
	for _, t := range todos {
		out = append(out, newTodoPayload(t))
	}
	return out
}

func newGroupedPayload(b todo.Buckets) groupedPayload {
	return groupedPayload{
		Overdue:   newTodoPayloads(b.Overdue),
		DueToday:  newTodoPayloads(b.DueToday),
		DueLater:  newTodoPayloads(b.DueLater),
		Completed: newTodoPayloads(b.Completed),
	}
}

func (r *Router) handleTodos(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.listTodos(w, req)
	case http.MethodPost:
		r.createTodo(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) listTodos(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for todo listing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	buckets, err := r.todos.Grouped(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if wantsJSON(req) {
		writeJSON(w, http.StatusOK, newGroupedPayload(buckets))
		return
	}
	r.render(w, "todos", map[string]any{
		"Title":     "My Todos",
		"User":      info.User,
		"Flash":     flashFromRequest(req),
		"CSRFToken": r.csrfToken(w, req),
		"Today":     domain.FormatDate(r.todos.Now()),
		"Buckets":   buckets,
	})
}

func (r *Router) createTodo(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for todo creation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var input todo.CreateInput
	if isJSONRequest(req) {
		if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		input = todo.CreateInput{Title: req.PostForm.Get("title"), DueDate: req.PostForm.Get("dueDate")}
	}
	created, err := r.todos.Create(req.Context(), info.UserID, input)
	if err != nil {
		r.respondMutationError(w, req, err)
		return
	}
	r.publish(info.UserID, "created", *created)
	if wantsJSON(req) {
		writeJSON(w, http.StatusCreated, newTodoPayload(*created))
		return
	}
	http.Redirect(w, req, "/todos", http.StatusFound)
}

// handleTodoByID serves /todos/{id}. Forms tunnel PUT and DELETE through
// POST with a _method field.
func (r *Router) handleTodoByID(w http.ResponseWriter, req *http.Request) {
	id := strings.Trim(strings.TrimPrefix(req.URL.Path, "/todos/"), "/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for todo route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch overrideMethod(req) {
	case http.MethodGet:
		found, err := r.todos.Get(req.Context(), info.UserID, id)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, newTodoPayload(*found))
	case http.MethodPut:
		r.updateTodo(w, req, info.UserID, id)
	case http.MethodDelete:
		r.deleteTodo(w, req, info.UserID, id)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) updateTodo(w http.ResponseWriter, req *http.Request, actorID, id string) {
	var completed *bool
	if isJSONRequest(req) {
		var payload struct {
			Completed json.RawMessage `json:"completed"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		var value bool
		if len(payload.Completed) > 0 && json.Unmarshal(payload.Completed, &value) == nil {
			completed = &value
		}
	} else {
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		if value, err := strconv.ParseBool(strings.TrimSpace(req.PostForm.Get("completed"))); err == nil {
			completed = &value
		}
	}
	updated, err := r.todos.SetCompletion(req.Context(), actorID, id, completed)
	if err != nil {
		r.respondMutationError(w, req, err)
		return
	}
	r.publish(actorID, "updated", *updated)
	if wantsJSON(req) {
		writeJSON(w, http.StatusOK, newTodoPayload(*updated))
		return
	}
	http.Redirect(w, req, "/todos", http.StatusFound)
}

// deleteTodo answers JSON clients with a bare boolean: true on success, false
// with 404 or 403 when the todo is missing or foreign.
func (r *Router) deleteTodo(w http.ResponseWriter, req *http.Request, actorID, id string) {
	removed, err := r.todos.Remove(req.Context(), actorID, id)
	if err != nil {
		if !wantsJSON(req) {
			r.respondMutationError(w, req, err)
			return
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, false)
		case errors.Is(err, domain.ErrForbidden):
			writeJSON(w, http.StatusForbidden, false)
		default:
			r.writeServiceError(w, req, err)
		}
		return
	}
	r.publish(actorID, "deleted", *removed)
	if wantsJSON(req) {
		writeJSON(w, http.StatusOK, true)
		return
	}
	http.Redirect(w, req, "/todos", http.StatusFound)
}

// respondMutationError renders err as JSON, or as a flash on the todo page.
func (r *Router) respondMutationError(w http.ResponseWriter, req *http.Request, err error) {
	if wantsJSON(req) {
		r.writeServiceError(w, req, err)
		return
	}
	if statusFor(err) == http.StatusInternalServerError {
		r.logger.Error("todo mutation failed", "path", req.URL.Path, "error", err)
	}
	redirectWithFlash(w, req, "/todos", flashFor(err))
}

func overrideMethod(req *http.Request) string {
	if req.Method != http.MethodPost {
		return req.Method
	}
	if isJSONRequest(req) {
		if m := strings.ToUpper(strings.TrimSpace(req.Header.Get("X-HTTP-Method-Override"))); m == http.MethodPut || m == http.MethodDelete {
			return m
		}
		return req.Method
	}
	if err := req.ParseForm(); err != nil {
		return req.Method
	}
	switch m := strings.ToUpper(strings.TrimSpace(req.PostForm.Get("_method"))); m {
	case http.MethodPut, http.MethodDelete:
		return m
	}
	return req.Method
}

// publish fans a todo event out to the owner's live streams.
func (r *Router) publish(ownerID, kind string, t domain.Todo) {
	if r.hub == nil {
		return
	}
	payload, err := json.Marshal(todoEvent{Type: kind, Todo: newTodoPayload(t)})
	if err != nil {
		r.logger.Error("encode todo event", "error", err)
		return
	}
	r.hub.Broadcast(ownerID, payload)
	r.recordTodoEvent(kind)
}

func (r *Router) handleTodosWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for todo websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(info.UserID, client)
	go func() {
		defer func() {
			r.hub.Unregister(info.UserID, client)
			client.Close()
		}()
		client.Wait()
	}()
}

// handleTodoEvents streams the same events as the websocket feed over SSE.
func (r *Router) handleTodoEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for todo events", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(info.UserID, client)
	defer func() {
		r.hub.Unregister(info.UserID, client)
		client.Close()
	}()

	// Events count as activity; the ping only goes out on an idle stream.
	ticker := time.NewTicker(sseHeartbeat / 5)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case now := <-ticker.C:
			if now.Sub(client.LastActivity()) < sseHeartbeat {
				continue
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
