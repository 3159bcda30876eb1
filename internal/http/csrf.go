package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/splax/todo/pkg/crypto"
)

const (
	csrfCookieName = "todo_csrf"
	csrfHeader     = "X-CSRF-Token"
	csrfField      = "_csrf"
	maxCSRFBody    = 1 << 20
)

// csrfToken returns the token for the caller's CSRF nonce cookie, issuing a
// fresh nonce when the request carries none.
func (r *Router) csrfToken(w http.ResponseWriter, req *http.Request) string {
	if cookie, err := req.Cookie(csrfCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return crypto.SignToken(r.csrfSecret, cookie.Value)
	}
	nonce := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    nonce,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return crypto.SignToken(r.csrfSecret, nonce)
}

// csrfProtect rejects state-changing requests whose token does not match the
// nonce cookie. Bearer-authenticated requests carry no ambient credentials
// and are exempt.
func (r *Router) csrfProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, req)
			return
		}
		if info, ok := authInfoFromContext(req.Context()); ok && info.Bearer {
			next(w, req)
			return
		}
		cookie, err := req.Cookie(csrfCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			r.rejectCSRF(w, req, "missing csrf cookie")
			return
		}
		submitted, err := submittedCSRFToken(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !crypto.VerifyToken(r.csrfSecret, cookie.Value, submitted) {
			r.rejectCSRF(w, req, "csrf token mismatch")
			return
		}
		next(w, req)
	}
}

func (r *Router) rejectCSRF(w http.ResponseWriter, req *http.Request, reason string) {
	r.logger.Warn("csrf check failed", "reason", reason, "path", req.URL.Path)
	writeError(w, http.StatusForbidden, "invalid csrf token")
}

// submittedCSRFToken reads the token from the header, a JSON body field or a
// form field, in that order. A JSON body is restored for the next handler.
func submittedCSRFToken(req *http.Request) (string, error) {
	if token := strings.TrimSpace(req.Header.Get(csrfHeader)); token != "" {
		return token, nil
	}
	if isJSONRequest(req) {
		if req.Body == nil {
			return "", nil
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxCSRFBody))
		if err != nil {
			return "", err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
		var payload struct {
			CSRF string `json:"_csrf"`
		}
		if len(bytes.TrimSpace(body)) > 0 {
			_ = json.Unmarshal(body, &payload)
		}
		return strings.TrimSpace(payload.CSRF), nil
	}
	if err := req.ParseForm(); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.PostForm.Get(csrfField)), nil
}

func isJSONRequest(req *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type"))), "application/json")
}
