package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const (
	contentTypeJSON = "application/json;charset=UTF-8"
	contentTypeText = "text/plain;charset=UTF-8"
	contentTypeHTML = "text/html;charset=UTF-8"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// invalidRequest answers a token endpoint request that cannot be honoured.
// The reason is logged, never returned.
func (a *App) invalidRequest(w http.ResponseWriter, reason string, fields ...zap.Field) {
	a.log.Info("invalid token request", append(fields, zap.String("reason", reason))...)
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("invalid_request"))
}

// bearerChallenge rejects a bearer request. An empty problem means no
// credentials were presented at all.
func bearerChallenge(w http.ResponseWriter, problem string) {
	challenge := "Bearer"
	if problem != "" {
		challenge += `, error="invalid_token", error_description="The access token is ` + problem + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.WriteHeader(http.StatusUnauthorized)
}

func (a *App) serverError(w http.ResponseWriter, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("server_error"))
}

// errorPage renders the login flow's HTML error page.
func (a *App) errorPage(w http.ResponseWriter, status int, title, body string) {
	a.log.Info("authorization error", zap.Int("status", status), zap.String("error", title))
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := errorTmpl.Execute(w, struct{ Title, Body string }{title, body}); err != nil {
		a.log.Warn("render error page", zap.Error(err))
	}
}
