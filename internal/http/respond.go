package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/todo/internal/domain"
)

// writeJSON writes JSON response with status code. The body carries no
// trailing newline so scalar responses such as `true` are exact.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as JSON. Validation failures carry their
// field errors; internal failures are logged and hidden from the client.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, status, map[string]any{
			"error":  "validation failed",
			"errors": verr.Fields,
		})
	case status == http.StatusInternalServerError:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, status, "internal error")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, status, domain.ErrInvalidCredentials.Error())
	case status == http.StatusUnauthorized:
		writeError(w, status, "authentication required")
	case status == http.StatusForbidden:
		writeError(w, status, "forbidden")
	default:
		writeError(w, status, "not found")
	}
}

// flashFor returns the user-facing text for err in HTML flows.
func flashFor(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return strings.Join(verr.Messages(), ". ")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, domain.ErrForbidden):
		return "You cannot change a todo that is not yours"
	case errors.Is(err, domain.ErrNotFound):
		return "Todo not found"
	default:
		return "Something went wrong, please try again"
	}
}
