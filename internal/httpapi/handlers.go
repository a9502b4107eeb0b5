package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"civreg.org/internal/auth"
	"civreg.org/internal/obs"
	"civreg.org/internal/registry"
	"civreg.org/internal/requests"
	"civreg.org/internal/users"
)

const serviceName = "civreg-api"

// Pinger is anything with a liveness check, e.g. the database or Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks backing services. Nil members are skipped.
type ReadyProbe struct {
	DB    Pinger
	Redis Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Auth     *auth.Service
	Users    *users.Service
	Registry *registry.Service
	Requests *requests.Service
	Ready    ReadyProbe
	Build    obs.BuildInfo

	RateBurst       int
	RatePerSec      float64
	LoginRatePerMin int

	// Production enables HSTS and HTTPS redirects.
	Production bool
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	auth     *auth.Service
	tokens   *auth.TokenService
	users    *users.Service
	registry *registry.Service
	requests *requests.Service
	ready    ReadyProbe
	build    obs.BuildInfo

	rateBurst       int
	ratePerSec      float64
	loginRatePerMin int
	production      bool
}

func New(d Deps) (*API, error) {
	if d.Auth == nil || d.Users == nil || d.Registry == nil || d.Requests == nil {
		return nil, errors.New("httpapi: auth, users, registry and requests services are required")
	}
	a := &API{
		auth:            d.Auth,
		tokens:          d.Auth.Tokens(),
		users:           d.Users,
		registry:        d.Registry,
		requests:        d.Requests,
		ready:           d.Ready,
		build:           d.Build,
		rateBurst:       d.RateBurst,
		ratePerSec:      d.RatePerSec,
		loginRatePerMin: d.LoginRatePerMin,
		production:      d.Production,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.loginRatePerMin <= 0 {
		a.loginRatePerMin = 10
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLRedirect:           a.production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	loginLimiter := httprate.Limit(a.loginRatePerMin, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "too many login attempts", "")
		}),
	)

	r := chi.NewRouter()
	r.Use(RequestID, obs.Instrument, LoggingJSON, Recoverer, sec.Handler, CORS)
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "resource not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter).Post("/login", a.handleLogin)
			r.With(loginLimiter).Post("/register", a.handleRegister)
			r.Post("/refresh", a.handleRefresh)
			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Get("/me", a.handleMe)
				r.Post("/logout", a.handleLogout)
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Route("/users", func(r chi.Router) {
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Get("/{id}", a.handleGetUser)
				r.Put("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeleteUser)
				r.Put("/{id}/password", a.handleResetPassword)
			})
			r.Route("/households", func(r chi.Router) {
				r.Get("/", a.handleListHouseholds)
				r.Post("/", a.handleCreateHousehold)
				r.Get("/{id}", a.handleGetHousehold)
				r.Put("/{id}", a.handleUpdateHousehold)
			})
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", a.handleListRequests)
				r.Post("/", a.handleSubmitRequest)
				r.Get("/{id}", a.handleGetRequest)
				r.Put("/{id}/approve", a.handleApproveRequest)
				r.Put("/{id}/reject", a.handleRejectRequest)
			})
			r.Get("/statistics", a.handleStatistics)
		})
	})
	return r
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.build.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, "ok", map[string]any{
		"name":            serviceName,
		"time":            time.Now().UTC().Format(time.RFC3339),
		"build":           a.build,
		"statelessLogout": a.tokens.Stateless(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
