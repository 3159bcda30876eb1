package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/service/auth"
	jwtpkg "github.com/splax/todo/pkg/jwt"
)

type authContextKey string

type authInfo struct {
	UserID string
	User   *domain.User
	Claims *jwtpkg.Claims
	Bearer bool
}

const contextKeyAuth authContextKey = "todo-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth resolves the session before invoking the handler. Anonymous
// browser requests are sent to the login page; API requests get a 401.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, err := r.resolveAuth(req)
		if err != nil {
			if !errors.Is(err, domain.ErrUnauthenticated) {
				r.writeServiceError(w, req, err)
				return
			}
			r.logger.Warn("session validation failed", "error", err, "path", req.URL.Path)
			if wantsJSON(req) {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if _, cookieErr := req.Cookie(r.cookieName); cookieErr == nil {
				http.SetCookie(w, r.expiredSessionCookie())
			}
			http.Redirect(w, req, "/login", http.StatusFound)
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// optionalAuth attaches the session when one is present and valid, and
// otherwise serves the request anonymously.
func (r *Router) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, err := r.resolveAuth(req)
		if err != nil {
			next(w, req)
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// resolveAuth validates the bearer header or, failing that, the session cookie.
func (r *Router) resolveAuth(req *http.Request) (context.Context, authInfo, error) {
	token, bearer, err := r.sessionToken(req)
	if err != nil {
		return req.Context(), authInfo{}, err
	}
	user, claims, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		return req.Context(), authInfo{}, err
	}
	info := authInfo{UserID: user.ID, User: user, Claims: claims, Bearer: bearer}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, nil
}

func (r *Router) sessionToken(req *http.Request) (string, bool, error) {
	if header := strings.TrimSpace(req.Header.Get("Authorization")); header != "" {
		token, err := bearerToken(header)
		if err != nil {
			return "", false, errors.Join(domain.ErrUnauthenticated, err)
		}
		return token, true, nil
	}
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false, errors.Join(domain.ErrUnauthenticated, errors.New("missing session cookie"))
	}
	return cookie.Value, false, nil
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

// wantsJSON reports whether the client expects JSON rather than HTML.
// Browsers can only send GET and POST from forms, so a real PUT or DELETE
// (not a _method override) or a JSON body marks a script client.
func wantsJSON(req *http.Request) bool {
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.TrimSpace(req.Header.Get("Authorization")) != "" {
		return true
	}
	switch req.Method {
	case http.MethodPut, http.MethodDelete:
		return true
	}
	return isJSONRequest(req)
}

func (r *Router) sessionCookie(session auth.Session) *http.Cookie {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     r.cookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (r *Router) expiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     r.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
