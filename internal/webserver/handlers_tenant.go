package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"authcore/internal/multitenancy"
	"authcore/pkg/middleware"
	"authcore/pkg/tenants"
)

type tenantBody struct {
	identifierBody
	EmailPassword tenants.EmailPasswordConfig `json:"emailPassword"`
	ThirdParty    tenants.ThirdPartyConfig    `json:"thirdParty"`
	Passwordless  tenants.PasswordlessConfig  `json:"passwordless"`
	CoreConfig    tenants.CoreConfig          `json:"coreConfig"`
}

func (a *App) putTenant(w http.ResponseWriter, r *http.Request) {
	var b tenantBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	cfg := tenants.TenantConfig{
		Identifier:    b.toIdentifier(),
		EmailPassword: b.EmailPassword,
		ThirdParty:    b.ThirdParty,
		Passwordless:  b.Passwordless,
		CoreConfig:    b.CoreConfig,
	}
	createdNew, err := a.core.AddOrUpdateTenant(r.Context(), cfg)
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK", "createdNew": createdNew}, http.StatusOK)
}

func (a *App) getTenant(w http.ResponseWriter, r *http.Request) {
	id := identifierFromQuery(r)
	t := a.core.GetTenantInfo(r.Context(), id)
	if t == nil {
		writeJSON(w, map[string]any{"status": "TENANT_NOT_FOUND_ERROR"}, http.StatusOK)
		return
	}
	resp := tenantJSON(*t)
	resp["status"] = "OK"
	writeJSON(w, resp, http.StatusOK)
}

func (a *App) deleteTenant(w http.ResponseWriter, r *http.Request) {
	id := identifierFromQuery(r)
	if err := a.core.DeleteTenant(r.Context(), id); err != nil {
		if errors.Is(err, tenants.ErrUnknownTenant) {
			writeJSON(w, map[string]any{"status": "OK", "didExist": false}, http.StatusOK)
			return
		}
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK", "didExist": true}, http.StatusOK)
}

func (a *App) listTenants(w http.ResponseWriter, r *http.Request) {
	list, err := a.core.GetAllTenants(r.Context(), identifierFromQuery(r))
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, t := range list {
		out = append(out, tenantJSON(t))
	}
	writeJSON(w, map[string]any{"status": "OK", "tenants": out}, http.StatusOK)
}

func (a *App) deleteApp(w http.ResponseWriter, r *http.Request) {
	if err := a.core.DeleteApp(r.Context(), identifierFromQuery(r)); err != nil {
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK"}, http.StatusOK)
}

func (a *App) deleteConnectionURIDomain(w http.ResponseWriter, r *http.Request) {
	if err := a.core.DeleteConnectionURIDomain(r.Context(), identifierFromQuery(r)); err != nil {
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK"}, http.StatusOK)
}

func (a *App) postTenantUser(w http.ResponseWriter, r *http.Request) {
	var b struct {
		identifierBody
		UserID      string `json:"userId"`
		NewTenantID string `json:"newTenantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	err := a.core.AddUserIDToTenant(r.Context(), b.toIdentifier(), b.UserID, b.NewTenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrUnknownUserID) {
			writeJSON(w, map[string]any{"status": "UNKNOWN_USER_ID_ERROR"}, http.StatusOK)
			return
		}
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK"}, http.StatusOK)
}

func (a *App) postTenantRole(w http.ResponseWriter, r *http.Request) {
	var b struct {
		identifierBody
		Role        string `json:"role"`
		NewTenantID string `json:"newTenantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	err := a.core.AddRoleToTenant(r.Context(), b.toIdentifier(), b.Role, b.NewTenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrUnknownRole) {
			writeJSON(w, map[string]any{"status": "UNKNOWN_ROLE_ERROR"}, http.StatusOK)
			return
		}
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": "OK"}, http.StatusOK)
}

func identifierFromQuery(r *http.Request) tenants.Identifier {
	return middleware.IdentifierFrom(r.Context())
}

// writeAdminError maps control-plane errors onto the admin wire
// contract.
func (a *App) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, multitenancy.ErrDefaultTenantProtected),
		errors.Is(err, multitenancy.ErrDefaultTenantRequired),
		errors.Is(err, multitenancy.ErrDefaultAppRequired),
		errors.Is(err, multitenancy.ErrDefaultConnectionURIDomainRequired):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, multitenancy.ErrSameTenantMove):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tenants.ErrUnknownTenant):
		writeJSON(w, map[string]any{"status": "UNKNOWN_TENANT_ERROR"}, http.StatusOK)
	case errors.Is(err, tenants.ErrTenantOrAppNotFound):
		writeJSON(w, map[string]any{"status": "TENANT_OR_APP_NOT_FOUND_ERROR"}, http.StatusOK)
	default:
		a.log.Errorw("tenant admin call failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
