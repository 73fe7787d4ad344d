// Package handlers serves the tracker as HTML pages. Every page behind
// RequireSession renders from a tracker.Surface mounted for the request.
package handlers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"image"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"spendbook/internal/avatar"
	"spendbook/internal/models"
	"spendbook/internal/tracker"
)

// Context key type to avoid collisions.
type contextKey string

const surfaceContextKey contextKey = "surface"

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"style": categoryStyle,
}

var views = parseViews("login.html", "signup.html", "dashboard.html", "profile.html", "reports.html")

func parseViews(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name))
	}
	return out
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	svc    *tracker.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *tracker.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger.With("component", "handlers"), now: time.Now}
}

// SurfaceFromContext returns the surface mounted by RequireSession.
func SurfaceFromContext(r *http.Request) *tracker.Surface {
	if s, ok := r.Context().Value(surfaceContextKey).(*tracker.Surface); ok {
		return s
	}
	return nil
}

// RequireSession resolves the session on every request and redirects to the
// login page when nobody is logged in. The mounted surface is closed when the
// request ends or the client goes away.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		surface, err := h.svc.Mount(r.Context(), nil)
		if errors.Is(err, models.ErrUnauthenticated) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if err != nil {
			h.serverError(w, r, "mount session", err)
			return
		}
		defer surface.Close()
		stop := context.AfterFunc(r.Context(), surface.Close)
		defer stop()

		ctx := context.WithValue(r.Context(), surfaceContextKey, surface)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Page is embedded in every view model. Nav is the user shown in the header.
type Page struct {
	Title  string
	Nav    *models.User
	Error  string
	Notice string
}

func (h *Handlers) page(r *http.Request, title string) Page {
	p := Page{Title: title, Notice: r.URL.Query().Get("notice")}
	if s := SurfaceFromContext(r); s != nil {
		p.Nav = s.User()
	}
	return p
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Page
	Email string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to the dashboard
	if _, err := h.svc.Current(r.Context()); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", LoginViewModel{Page: h.page(r, "Login")})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	vm := LoginViewModel{Page: h.page(r, "Login")}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "login.html", vm)
		return
	}

	vm.Email = strings.TrimSpace(r.FormValue("email"))
	if _, err := h.svc.Login(r.Context(), vm.Email, r.FormValue("password")); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.serverError(w, r, "login", err)
			return
		}
		vm.Error = userMessage(err)
		h.render(w, r, status, "login.html", vm)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// SignupViewModel holds data for the signup page.
type SignupViewModel struct {
	Page
	Name  string
	Email string
	Phone string
}

// SignupForm renders the signup page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", SignupViewModel{Page: h.page(r, "Sign up")})
}

// Signup registers an account and sends the user to the login page.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	vm := SignupViewModel{Page: h.page(r, "Sign up")}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "signup.html", vm)
		return
	}
	vm.Name = r.FormValue("name")
	vm.Email = r.FormValue("email")
	vm.Phone = r.FormValue("phone")

	password := r.FormValue("password")
	if password != r.FormValue("confirm_password") {
		vm.Error = "Passwords do not match"
		h.render(w, r, http.StatusUnprocessableEntity, "signup.html", vm)
		return
	}

	_, err := h.svc.Signup(r.Context(), tracker.SignupInput{Name: vm.Name, Email: vm.Email, Phone: vm.Phone, Password: password})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.serverError(w, r, "signup", err)
			return
		}
		vm.Error = userMessage(err)
		h.render(w, r, status, "signup.html", vm)
		return
	}
	http.Redirect(w, r, "/login?notice=Account+created.+Please+log+in.", http.StatusSeeOther)
}

// Logout ends the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context()); err != nil {
		h.serverError(w, r, "logout", err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// fail reports err from a service call made on behalf of a logged-in page.
// It returns false when the caller should render the form again with the
// message, true when a response has been written.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	switch statusFor(err) {
	case http.StatusUnauthorized:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return true
	case http.StatusInternalServerError:
		h.serverError(w, r, op, err)
		return true
	}
	return false
}

func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, avatar.ErrDimensions), errors.Is(err, image.ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, models.ErrExpenseNotFound):
		return http.StatusNotFound
	case errors.Is(err, avatar.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, models.ErrDuplicateUser):
		return "An account with this name or email already exists"
	case errors.Is(err, image.ErrFormat):
		return "Please upload a PNG, JPEG or GIF image"
	default:
		return err.Error()
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", "op", op, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, view string, data any) {
	tmpl, ok := views[view]
	if !ok {
		h.serverError(w, r, "render", fmt.Errorf("unknown view %q", view))
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		h.serverError(w, r, "render "+view, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.DebugContext(r.Context(), "write response", "error", err)
	}
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Color string
}

var categoryColors = map[string]string{
	models.CategoryFood:      "#60a5fa",
	models.CategoryTransport: "#a78bfa",
	models.CategoryShopping:  "#f472b6",
	models.CategoryBills:     "#fbbf24",
	models.CategoryInternet:  "#34d399",
	models.CategoryOthers:    "#94a3b8",
}

func categoryStyle(category string) CategoryStyle {
	if c, ok := categoryColors[models.NormalizeCategory(category)]; ok {
		return CategoryStyle{Color: c}
	}
	return CategoryStyle{Color: categoryColors[models.CategoryOthers]}
}
