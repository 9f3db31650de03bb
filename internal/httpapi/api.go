package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"tempora.dev/internal/audit"
	"tempora.dev/internal/auth"
	"tempora.dev/internal/lifecycle"
	"tempora.dev/internal/obs"
)

// ReadyProbe checks request-path dependencies (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth core.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	enforcer   *auth.Enforcer
	scanner    *lifecycle.Scanner
	readyProbe ReadyProbe
	version    string
}

// New wires routes. Every protected route declares its required
// (resource, action) pair at registration; a single enforcement pass runs
// before the handler body.
func New(authSvc *auth.Service, enforcer *auth.Enforcer, scanner *lifecycle.Scanner, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		enforcer:   enforcer,
		scanner:    scanner,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)

	// Audit read access is dual-rule (self or audit:read) and therefore
	// enforced inside the service, not here.
	a.mux.HandleFunc("/v1/audit/logins", a.handleLoginAudit)

	a.mux.HandleFunc("/v1/admin/lifecycle/scan",
		a.protect(auth.ResourceLifecycle, auth.ActionRun, a.handleLifecycleScan))
	a.mux.HandleFunc("/v1/admin/roles/",
		a.protect(auth.ResourceRoles, auth.ActionManage, a.handleRoleScoped))
	a.mux.HandleFunc("/v1/admin/users",
		a.protect(auth.ResourceUsers, auth.ActionManage, a.handleCreateUser))
	a.mux.HandleFunc("/v1/admin/users/",
		a.protect(auth.ResourceUsers, auth.ActionManage, a.handleUserScoped))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// protect runs the declared permission requirement before the handler.
// Denials are audited with the caller identity and requirement.
func (a *API) protect(resource, action string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.enforcer.Require(r.Context(), resource, action); err != nil {
			_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
				"resource": resource,
				"action":   action,
				"path":     r.URL.Path,
			})
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		h(w, r)
	}
}

// Healthz reports liveness.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tempora-auth",
		"version": a.version,
	})
}

// Ready reports readiness, pinging the database when configured.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
