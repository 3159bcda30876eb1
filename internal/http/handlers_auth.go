package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/service/auth"
)

type userPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func newUserPayload(user *domain.User) userPayload {
	return userPayload{ID: user.ID, FirstName: user.FirstName, LastName: user.LastName, Email: user.Email}
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := authInfoFromContext(req.Context()); ok {
		http.Redirect(w, req, "/todos", http.StatusFound)
		return
	}
	r.render(w, "index", map[string]any{
		"Title": "Welcome",
		"Flash": flashFromRequest(req),
	})
}

func (r *Router) handleCSRF(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": r.csrfToken(w, req)})
}

func (r *Router) handleSignupPage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := authInfoFromContext(req.Context()); ok {
		http.Redirect(w, req, "/todos", http.StatusFound)
		return
	}
	query := req.URL.Query()
	r.render(w, "signup", map[string]any{
		"Title":     "Sign up",
		"Flash":     flashFromRequest(req),
		"CSRFToken": r.csrfToken(w, req),
		"FirstName": query.Get("firstName"),
		"LastName":  query.Get("lastName"),
		"Email":     query.Get("email"),
	})
}

func (r *Router) handleLoginPage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := authInfoFromContext(req.Context()); ok {
		http.Redirect(w, req, "/todos", http.StatusFound)
		return
	}
	r.render(w, "login", map[string]any{
		"Title":     "Sign in",
		"Flash":     flashFromRequest(req),
		"CSRFToken": r.csrfToken(w, req),
		"Email":     req.URL.Query().Get("email"),
	})
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var input auth.SignupInput
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
		input = auth.SignupInput{
			FirstName: req.PostForm.Get("firstName"),
			LastName:  req.PostForm.Get("lastName"),
			Email:     req.PostForm.Get("email"),
			Password:  req.PostForm.Get("password"),
		}
	}
	user, session, err := r.auth.Signup(req.Context(), input)
	if err != nil {
		if wantsJSON(req) {
			r.writeServiceError(w, req, err)
			return
		}
		if statusFor(err) == http.StatusInternalServerError {
			r.logger.Error("signup failed", "error", err)
		}
		back := url.Values{}
		back.Set("firstName", strings.TrimSpace(input.FirstName))
		back.Set("lastName", strings.TrimSpace(input.LastName))
		back.Set("email", strings.TrimSpace(input.Email))
		redirectWithFlash(w, req, "/signup?"+back.Encode(), flashFor(err))
		return
	}
	http.SetCookie(w, r.sessionCookie(session))
	if wantsJSON(req) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":    newUserPayload(user),
			"session": session,
		})
		return
	}
	http.Redirect(w, req, "/todos", http.StatusFound)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if isJSONRequest(req) {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		payload.Email = req.PostForm.Get("email")
		payload.Password = req.PostForm.Get("password")
	}
	user, session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if wantsJSON(req) {
			r.writeServiceError(w, req, err)
			return
		}
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			r.logger.Error("login failed", "error", err)
		}
		back := url.Values{}
		back.Set("email", strings.TrimSpace(payload.Email))
		redirectWithFlash(w, req, "/login?"+back.Encode(), flashFor(err))
		return
	}
	http.SetCookie(w, r.sessionCookie(session))
	if wantsJSON(req) {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":    newUserPayload(user),
			"session": session,
		})
		return
	}
	http.Redirect(w, req, "/todos", http.StatusFound)
}

// handleSignout revokes the current session, if any, and always clears the
// cookie.
func (r *Router) handleSignout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if info, ok := authInfoFromContext(req.Context()); ok {
		if err := r.auth.Logout(req.Context(), info.Claims); err != nil {
			r.logger.Error("session revocation failed", "user_id", info.UserID, "error", err)
		}
	}
	http.SetCookie(w, r.expiredSessionCookie())
	if wantsJSON(req) {
		writeJSON(w, http.StatusOK, true)
		return
	}
	redirectWithFlash(w, req, "/", "You have been signed out")
}
