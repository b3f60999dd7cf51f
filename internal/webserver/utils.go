package webserver

import (
	"encoding/json"
	"net/http"

	"authcore/pkg/tenants"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// identifierBody is the wire shape of a tenant identifier; empty
// components select the defaults.
type identifierBody struct {
	ConnectionURIDomain string `json:"connectionUriDomain"`
	AppID               string `json:"appId"`
	TenantID            string `json:"tenantId"`
}

func (b identifierBody) toIdentifier() tenants.Identifier {
	return tenants.NewIdentifier(b.ConnectionURIDomain, b.AppID, b.TenantID)
}

func identifierJSON(id tenants.Identifier) map[string]any {
	return map[string]any{
		"connectionUriDomain": id.ConnectionURIDomain(),
		"appId":               id.AppID(),
		"tenantId":            id.TenantID(),
	}
}

func tenantJSON(t tenants.TenantConfig) map[string]any {
	return map[string]any{
		"tenantIdentifier": identifierJSON(t.Identifier),
		"emailPassword":    t.EmailPassword,
		"thirdParty":       t.ThirdParty,
		"passwordless":     t.Passwordless,
		"coreConfig":       t.CoreConfig,
	}
}
