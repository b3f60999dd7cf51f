package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"authcore/internal/userroles"
	"authcore/pkg/middleware"
	"authcore/pkg/tenants"
)

func (a *App) getPermissionsForRole(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		http.Error(w, "Field name 'role' cannot be an empty String", http.StatusBadRequest)
		return
	}

	id := middleware.IdentifierFrom(r.Context())
	h, err := a.core.StorageFor(id)
	if err != nil {
		a.log.Errorw("resolving storage for role lookup", "tenant", id.String(), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	permissions, err := userroles.GetPermissionsForRole(r.Context(), a.rolesStore(h.Roles), role)
	if err != nil {
		if errors.Is(err, tenants.ErrUnknownRole) {
			writeJSON(w, map[string]any{"status": "UNKNOWN_ROLE_ERROR"}, http.StatusOK)
			return
		}
		a.log.Errorw("permissions lookup", "role", role, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if permissions == nil {
		permissions = []string{}
	}
	writeJSON(w, map[string]any{"status": "OK", "permissions": permissions}, http.StatusOK)
}

func (a *App) putRole(w http.ResponseWriter, r *http.Request) {
	var b struct {
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(b.Role) == "" {
		http.Error(w, "Field name 'role' cannot be an empty String", http.StatusBadRequest)
		return
	}

	id := middleware.IdentifierFrom(r.Context())
	h, err := a.core.StorageFor(id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.rolesStore(h.Roles).CreateOrUpdateRole(r.Context(), strings.TrimSpace(b.Role), b.Permissions); err != nil {
		a.log.Errorw("role upsert", "role", b.Role, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "OK"}, http.StatusOK)
}
