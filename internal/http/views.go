package httpx

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("base").Funcs(template.FuncMap{"dict": dict}).ParseFS(templateFS, "templates/*.html")
}

// dict builds a map from alternating keys and values so templates can pass
// several values to a nested template.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict requires key/value pairs")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

func (r *Router) render(w http.ResponseWriter, tpl string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.templates.ExecuteTemplate(w, tpl, data); err != nil {
		r.logger.Error("template render failed", "template", tpl, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func flashFromRequest(req *http.Request) string {
	return strings.TrimSpace(req.URL.Query().Get("flash"))
}

func redirectWithFlash(w http.ResponseWriter, req *http.Request, target, message string) {
	if strings.TrimSpace(target) == "" {
		target = "/"
	}
	if strings.TrimSpace(message) == "" {
		http.Redirect(w, req, target, http.StatusFound)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		http.Redirect(w, req, "/", http.StatusFound)
		return
	}
	q := u.Query()
	q.Set("flash", message)
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}
