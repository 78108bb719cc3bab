/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, also attached to error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser client
  5. Session:    roster.Session from X-Actor-ID / X-Actor-Role (under /api,
                 except scenarios)

ROUTE GROUPS:
  /api/shifts/*       Shift lifecycle and attendance
  /api/workers/*      Per-worker views
  /api/payroll        Pay aggregation
  /api/leaves/*       Medical leave workflow
  /api/properties/*   Property directory
  /api/admin/*        Estimates and consistency sweeps
  /api/events         Emitted notifications
  /api/scenarios/*    Demo scenarios (no session, dev only)

SECURITY NOTE:
  The actor headers are trusted as-is. Authentication belongs in front of
  this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/shift-engine/roster"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderActorRole},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)

			// Loading or resetting wipes the database.
			r.Group(func(r chi.Router) {
				r.Use(sessionMiddleware, requireManager)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware)

			// Shift routes
			r.Route("/shifts", func(r chi.Router) {
				r.Get("/", h.ListShifts)
				r.Post("/", h.CreateShift)
				r.Get("/{id}", h.GetShift)
				r.Post("/{id}/reschedule", h.RescheduleShift)
				r.Post("/{id}/cancel", h.CancelShift)
				r.Post("/{id}/attendance", h.RecordAttendance)
				r.Post("/{id}/complete", h.CompleteShift)
			})

			// Worker routes
			r.Route("/workers/{id}", func(r chi.Router) {
				r.Get("/shifts", h.ListWorkerShifts)
				r.Get("/leaves", h.ListWorkerLeaves)
			})

			r.Get("/payroll", h.GetPayroll)

			// Leave routes
			r.Route("/leaves", func(r chi.Router) {
				r.Post("/", h.SubmitLeave)
				r.Get("/pending", h.ListPendingLeaves)
				r.Get("/{id}", h.GetLeave)
				r.Get("/{id}/preview", h.PreviewLeave)
				r.Post("/{id}/approve", h.ApproveLeave)
				r.Post("/{id}/reject", h.RejectLeave)
				r.Post("/{id}/reallocate", h.ReallocateLeave)
			})

			// Property routes
			r.Route("/properties", func(r chi.Router) {
				r.Post("/", h.SaveProperty)
				r.Get("/{id}", h.GetProperty)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Post("/estimates", h.SetEstimates)
				r.Get("/consistency", h.GetConsistency)
				r.Post("/consistency", h.RunConsistency)
			})

			r.Get("/events", h.ListEvents)
		})
	})

	return r
}

// =============================================================================
// SESSION
// =============================================================================

type ctxKey int

const sessionKey ctxKey = iota

// sessionMiddleware rejects requests without an actor and stores the
// session in the request context. The role defaults to worker; "system" is
// reserved for in-process callers.
func sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if actor == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+HeaderActorID+" header", nil)
			return
		}
		role := roster.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole))))
		switch role {
		case "":
			role = roster.RoleWorker
		case roster.RoleWorker, roster.RoleManager:
		default:
			writeError(w, http.StatusBadRequest, "Unknown "+HeaderActorRole+" "+string(role), nil)
			return
		}
		sess := roster.Session{ActorID: roster.WorkerID(actor), Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// requireManager lets only manager sessions through. It runs after
// sessionMiddleware.
func requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r).CanManage() {
			writeError(w, http.StatusForbidden, "Manager role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionFrom returns the request's session. Routes outside the session
// group get an empty worker session, which can do nothing.
func sessionFrom(r *http.Request) roster.Session {
	if sess, ok := r.Context().Value(sessionKey).(roster.Session); ok {
		return sess
	}
	return roster.Session{Role: roster.RoleWorker}
}
