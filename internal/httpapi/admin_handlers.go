package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tempora.dev/internal/audit"
	"tempora.dev/internal/auth"
)

type createUserRequest struct {
	Username            string     `json:"username"`
	Password            string     `json:"password"`
	Role                string     `json:"role"`
	Email               string     `json:"email"`
	PasswordExpiresAt   *time.Time `json:"password_expires_at"`
	ForcePasswordChange bool       `json:"force_password_change"`
}

type userResponse struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	Role              string     `json:"role"`
	Enabled           bool       `json:"enabled"`
	Locked            bool       `json:"locked"`
	PasswordExpiresAt *time.Time `json:"password_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type rolePermissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type loginAuditResponse struct {
	Items    []auth.LoginAudit `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

func (a *API) handleLoginAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("username"))
	if target == "" {
		username, ok := auth.UsernameFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		target = username
	}
	page := intQuery(q.Get("page"), 1)
	pageSize := intQuery(q.Get("page_size"), 50)

	items, err := a.auth.GetLoginAudit(r.Context(), target, page, pageSize)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if items == nil {
		items = []auth.LoginAudit{}
	}
	writeJSON(w, http.StatusOK, loginAuditResponse{
		Items:    items,
		Page:     page,
		PageSize: clampPageSize(pageSize),
	})
}

// handleLifecycleScan runs the password expiry pass on demand. The scheduled
// daily run uses the same scanner; triggering it twice on one calendar day
// sends nothing extra.
func (a *API) handleLifecycleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	summary, err := a.scanner.Run(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "lifecycle.scan", map[string]any{
		"scanned":         summary.Scanned,
		"warned":          summary.Warned,
		"expired_notices": summary.ExpiredNotices,
	})
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/")
	roleName, rest, ok := strings.Cut(path, "/")
	if !ok || roleName == "" || rest != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getRolePermissions(w, r, roleName)
	case http.MethodPut:
		a.setRolePermissions(w, r, roleName)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getRolePermissions(w http.ResponseWriter, r *http.Request, roleName string) {
	keys, err := a.auth.RolePermissions(r.Context(), roleName)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, rolePermissionsResponse{Role: roleName, Permissions: keys})
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request, roleName string) {
	var req setRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for _, key := range req.Permissions {
		if _, _, ok := strings.Cut(key, ":"); !ok {
			writeError(w, r, http.StatusBadRequest, "permissions must be resource:action pairs")
			return
		}
	}
	if err := a.auth.SetRolePermissions(r.Context(), roleName, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.role_permissions_set", map[string]any{
		"role":  roleName,
		"count": len(req.Permissions),
	})
	a.getRolePermissions(w, r, roleName)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.CreateUser(r.Context(), auth.CreateUserParams{
		Username:            req.Username,
		Password:            req.Password,
		RoleName:            req.Role,
		Email:               req.Email,
		ExpiresAt:           req.PasswordExpiresAt,
		ForcePasswordChange: req.ForcePasswordChange,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.created", map[string]any{
		"username": user.Username,
		"role":     req.Role,
	})
	w.Header().Set("Location", "/v1/admin/users/"+user.Username)
	writeJSON(w, http.StatusCreated, userResponse{
		ID:                user.ID,
		Username:          user.Username,
		Email:             user.Email,
		Role:              strings.ToUpper(strings.TrimSpace(req.Role)),
		Enabled:           user.Enabled,
		Locked:            user.Locked,
		PasswordExpiresAt: user.ExpiresAt,
		CreatedAt:         user.CreatedAt,
	})
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	username, action, ok := strings.Cut(path, "/")
	if !ok || username == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "unlock":
		a.unlockUser(w, r, username)
	case "enabled":
		a.setUserEnabled(w, r, username)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// unlockUser clears the lockout flag and failure counter. This is the only
// way back in after the lockout threshold trips.
func (a *API) unlockUser(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.auth.Unlock(r.Context(), username); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.unlocked", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setUserEnabled(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req setEnabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.SetEnabled(r.Context(), username, req.Enabled); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.enabled_set", map[string]any{
		"username": username,
		"enabled":  req.Enabled,
	})
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func clampPageSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > 200 {
		return 200
	}
	return n
}
