package main

import (
	"context"
	"net/http"
	"time"
)

const serviceDocumentation = "https://indieauth.spec.indieweb.org/#indieauth-server-metadata"

type serverMetadata struct {
	Issuer                   string   `json:"issuer"`
	AuthorizationEndpoint    string   `json:"authorization_endpoint"`
	TokenEndpoint            string   `json:"token_endpoint"`
	IntrospectionEndpoint    string   `json:"introspection_endpoint"`
	ResponseTypes            []string `json:"response_types_supported"`
	ResponseModes            []string `json:"response_modes_supported"`
	GrantTypes               []string `json:"grant_types_supported"`
	TokenAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	IntrospectionAuthMethods []string `json:"introspection_endpoint_auth_methods_supported"`
	ServiceDocumentation     string   `json:"service_documentation"`
}

func (a *App) HandleMetadata(w http.ResponseWriter, _ *http.Request) {
	basic := []string{"client_secret_basic"}
	writeJSON(w, http.StatusOK, serverMetadata{
		Issuer:                   a.cfg.Issuer,
		AuthorizationEndpoint:    a.cfg.AuthEndpoint(),
		TokenEndpoint:            a.cfg.TokenEndpoint() + "?action=authorize",
		IntrospectionEndpoint:    a.cfg.TokenEndpoint() + "?action=introspect",
		ResponseTypes:            []string{"code"},
		ResponseModes:            []string{"query"},
		GrantTypes:               []string{"authorization_code"},
		TokenAuthMethods:         basic,
		IntrospectionAuthMethods: basic,
		ServiceDocumentation:     serviceDocumentation,
	})
}

func (a *App) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
