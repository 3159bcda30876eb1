package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the todo API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
	csrfToken  string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. The client needs a cookie
// jar for anonymous requests such as signup and login.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e APIError) Error() string {
	if len(e.Fields) > 0 {
		msgs := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			msgs = append(msgs, f.Message)
		}
		return fmt.Sprintf("api request failed (%d): %s", e.Status, strings.Join(msgs, "; "))
	}
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return errors.New("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	token = strings.TrimSpace(token)
	var csrf string
	if token == "" && method != http.MethodGet {
		var err error
		if csrf, err = c.csrf(ctx); err != nil {
			return err
		}
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// csrf fetches and caches the token bound to the jar's nonce cookie.
func (c *Client) csrf(ctx context.Context) (string, error) {
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}
	var payload struct {
		Token string `json:"csrfToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/csrf", nil, "", &payload); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if payload.Token == "" {
		return "", errors.New("fetch csrf token: empty token")
	}
	c.csrfToken = payload.Token
	return c.csrfToken, nil
}

func extractError(status int, body io.Reader) error {
	apiErr := APIError{Status: status}
	if body == nil {
		return apiErr
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error  string       `json:"error"`
		Errors []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Fields = payload.Errors
	return apiErr
}

// User reflects API user payloads.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Session is the signed session token issued on signup and login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponse captures the user and session emitted by the API.
type AuthResponse struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

// SignupInput captures the registration payload.
type SignupInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Signup registers an account and returns its first session.
func (c *Client) Signup(ctx context.Context, input SignupInput) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/users", input, "", &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/session", body, "", &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Signout revokes the session.
func (c *Client) Signout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/signout", nil, token, nil)
}

// Todo mirrors the API todo payload. DueDate is YYYY-MM-DD.
type Todo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

// GroupedTodos holds the caller's todos by bucket.
type GroupedTodos struct {
	Overdue   []Todo `json:"overdueTodos"`
	DueToday  []Todo `json:"dueTodayTodos"`
	DueLater  []Todo `json:"dueLaterTodos"`
	Completed []Todo `json:"completedTodos"`
}

// ListTodos returns the caller's todos grouped by bucket.
func (c *Client) ListTodos(ctx context.Context, token string) (GroupedTodos, error) {
	var grouped GroupedTodos
	if err := c.do(ctx, http.MethodGet, "/todos", nil, token, &grouped); err != nil {
		return GroupedTodos{}, err
	}
	return grouped, nil
}

// GetTodo fetches one todo.
func (c *Client) GetTodo(ctx context.Context, token, id string) (Todo, error) {
	var todo Todo
	if err := c.do(ctx, http.MethodGet, "/todos/"+url.PathEscape(id), nil, token, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// CreateTodo adds a todo due on dueDate (YYYY-MM-DD).
func (c *Client) CreateTodo(ctx context.Context, token, title, dueDate string) (Todo, error) {
	body := map[string]string{"title": title, "dueDate": dueDate}
	var todo Todo
	if err := c.do(ctx, http.MethodPost, "/todos", body, token, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// SetCompletion marks a todo complete or incomplete.
func (c *Client) SetCompletion(ctx context.Context, token, id string, completed bool) (Todo, error) {
	body := map[string]bool{"completed": completed}
	var todo Todo
	if err := c.do(ctx, http.MethodPut, "/todos/"+url.PathEscape(id), body, token, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, token, id string) error {
	var deleted bool
	err := c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, token, &deleted)
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound:
			apiErr.Message = "todo not found"
		case http.StatusForbidden:
			apiErr.Message = "todo belongs to another user"
		}
		return apiErr
	}
	if err != nil {
		return err
	}
	if !deleted {
		return errors.New("todo was not deleted")
	}
	return nil
}
