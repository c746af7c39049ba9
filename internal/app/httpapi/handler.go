// Package httpapi exposes the application services over REST.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/habitloop/habitloop/internal/app"
	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/app/metrics"
	"github.com/habitloop/habitloop/internal/app/services/gamification"
	"github.com/habitloop/habitloop/internal/app/services/habits"
	"github.com/habitloop/habitloop/internal/app/services/users"
	"github.com/habitloop/habitloop/internal/middleware"
)

type contextKey string

const (
	userContextKey  contextKey = "httpapi.user"
	auditContextKey contextKey = "httpapi.audit"
)

// auditCarrier lets inner middleware expose the authenticated user to the
// outer audit middleware.
type auditCarrier struct {
	userID string
}

// Options configures optional handler behaviour.
type Options struct {
	// AuditDB, when set, persists audit entries to the app_audit_log table
	// in addition to the in-memory ring buffer.
	AuditDB *sql.DB
	// RateLimit throttles requests per user (or per IP before login).
	RateLimit *middleware.RateLimiter
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a router exposing the REST API with metrics, CORS,
// rate limiting, and audit logging applied.
func NewHandler(application *app.Application, opts Options) http.Handler {
	var sink auditSink
	if db := newDBAuditSink(opts.AuditDB); db != nil {
		sink = db
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(200, sink),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth").Subrouter()
	if opts.RateLimit != nil {
		// Pre-auth traffic is throttled per IP.
		auth.Use(opts.RateLimit.Middleware(nil))
	}
	auth.HandleFunc("/register", h.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(h.requireUser)
	if opts.RateLimit != nil {
		// requireUser has already resolved the user, so the limiter keys off
		// the context instead of authenticating a second time.
		api.Use(opts.RateLimit.Middleware(func(r *http.Request) string {
			return userFrom(r.Context()).ID
		}))
	}
	api.HandleFunc("/me", h.me).Methods(http.MethodGet)
	api.HandleFunc("/habits", h.listHabits).Methods(http.MethodGet)
	api.HandleFunc("/habits", h.createHabit).Methods(http.MethodPost)
	api.HandleFunc("/habits/{id}", h.getHabit).Methods(http.MethodGet)
	api.HandleFunc("/habits/{id}", h.updateHabit).Methods(http.MethodPatch)
	api.HandleFunc("/habits/{id}", h.deleteHabit).Methods(http.MethodDelete)
	api.HandleFunc("/habits/{id}/checkins", h.listCheckIns).Methods(http.MethodGet)
	api.HandleFunc("/habits/{id}/checkins", h.recordCheckIn).Methods(http.MethodPost)
	api.HandleFunc("/profile", h.profile).Methods(http.MethodGet)
	api.HandleFunc("/profile/reconcile", h.reconcileProfile).Methods(http.MethodPost)
	api.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)

	var wrapped http.Handler = r
	wrapped = h.recordAudit(wrapped)
	wrapped = middleware.CORS(wrapped)
	return metrics.InstrumentHandler(wrapped)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, err := h.app.Users.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  u,
		"token": token,
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
		return
	}
	if err := h.app.Users.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	p, err := h.app.Gamification.Profile(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    u,
		"profile": p,
	})
}

func (h *handler) listHabits(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	list, err := h.app.Habits.List(r.Context(), u.ID, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createHabit(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Habits.Create(r.Context(), u.ID, payload.Name, payload.Description)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getHabit(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	habitID := mux.Vars(r)["id"]

	hw, err := h.app.Habits.Get(r.Context(), u.ID, habitID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, hw)
}

func (h *handler) updateHabit(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	habitID := mux.Vars(r)["id"]

	var payload struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Active      *bool   `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Habits.Update(r.Context(), u.ID, habitID, payload.Name, payload.Description, payload.Active)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteHabit(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	habitID := mux.Vars(r)["id"]

	if err := h.app.Habits.Delete(r.Context(), u.ID, habitID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listCheckIns(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	habitID := mux.Vars(r)["id"]

	list, err := h.app.Habits.CheckIns(r.Context(), u.ID, habitID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) recordCheckIn(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	habitID := mux.Vars(r)["id"]

	var payload struct {
		Date         string `json:"date"` // YYYY-MM-DD, defaults to today
		MinutesSpent int    `json:"minutes_spent"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var date time.Time
	if strings.TrimSpace(payload.Date) != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	result, err := h.app.Gamification.RecordCheckIn(r.Context(), u.ID, habitID, date, payload.MinutesSpent)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	p, err := h.app.Gamification.Profile(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) reconcileProfile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	p, err := h.app.Gamification.Reconcile(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.app.Leaderboard.Top(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// requireUser authenticates the bearer token and stores the user on the
// request context.
func (h *handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}
		u, err := h.app.Users.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if carrier, ok := r.Context().Value(auditContextKey).(*auditCarrier); ok {
			carrier.userID = u.ID
		}
		ctx := context.WithValue(r.Context(), userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recordAudit captures every request in the audit ring buffer.
func (h *handler) recordAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		carrier := &auditCarrier{}
		r = r.WithContext(context.WithValue(r.Context(), auditContextKey, carrier))
		next.ServeHTTP(rec, r)

		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			UserID:     carrier.userID,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func userFrom(ctx context.Context) user.User {
	if u, ok := ctx.Value(userContextKey).(user.User); ok {
		return u
	}
	return user.User{}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, habits.ErrDuplicateName), errors.Is(err, users.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, users.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, gamification.ErrFutureDate),
		errors.Is(err, gamification.ErrInvalidInput),
		errors.Is(err, habits.ErrInvalidInput),
		errors.Is(err, users.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
