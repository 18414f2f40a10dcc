package main

import (
	"errors"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/exchange"
	"github.com/selfauth/selfauth/internal/token"
	"github.com/selfauth/selfauth/internal/validate"
)

var (
	bearerHeader = regexp.MustCompile(`^Bearer [0-9a-f]+_[0-9a-f]+$`)
	printableAll = regexp.MustCompile(`^[\x20-\x7E]+$`)
)

// HandleToken is the token endpoint: bearer verification on GET, and on
// POST one of revoke, introspect or the authorization code grant.
func (a *App) HandleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleBearer(w, r)
	case http.MethodPost:
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/x-www-form-urlencoded" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		if err := r.ParseForm(); err != nil {
			a.invalidRequest(w, "unparsable form", zap.Error(err))
			return
		}
		switch action := r.URL.Query().Get("action"); action {
		case "revoke":
			a.handleRevoke(w, r)
		case "introspect":
			a.handleIntrospect(w, r)
		case "authorize", "":
			a.handleGrant(w, r)
		default:
			a.invalidRequest(w, "unknown action", zap.String("action", action))
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *App) handleBearer(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if header == "" {
		bearerChallenge(w, "")
		return
	}
	if !bearerHeader.MatchString(header) {
		bearerChallenge(w, "malformed")
		return
	}

	rec, err := a.tokens.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
	switch {
	case errors.Is(err, token.ErrMalformedToken):
		bearerChallenge(w, "malformed")
		return
	case err != nil:
		a.serverError(w, "verify bearer token", err)
		return
	case rec == nil:
		bearerChallenge(w, "unknown")
		return
	case !rec.Active:
		bearerChallenge(w, "revoked")
		return
	}

	if err := a.tokens.MarkUsed(r.Context(), rec.ID); err != nil {
		a.serverError(w, "mark token used", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"me":        rec.Me,
		"client_id": rec.ClientID,
		"scope":     rec.Scope,
	})
}

func (a *App) handleRevoke(w http.ResponseWriter, r *http.Request) {
	err := a.tokens.Revoke(r.Context(), r.PostForm.Get("token"))
	if err != nil && !errors.Is(err, token.ErrMalformedToken) {
		a.serverError(w, "revoke token", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type introspection struct {
	Active    bool   `json:"active"`
	TokenType string `json:"token_type,omitempty"`
	Me        string `json:"me,omitempty"`
	Sub       string `json:"sub,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

func (a *App) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	rec, err := a.tokens.Verify(r.Context(), r.PostForm.Get("token"))
	if err != nil && !errors.Is(err, token.ErrMalformedToken) {
		a.serverError(w, "introspect token", err)
		return
	}
	if rec == nil || !rec.Active {
		writeJSON(w, http.StatusOK, introspection{Active: false})
		return
	}

	user, pass, _ := r.BasicAuth()
	if !token.AuthenticateResourceServer(rec.ClientID, user, pass) {
		w.Header().Set("WWW-Authenticate", "Basic")
		w.Header().Set("Content-Type", contentTypeText)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Unauthorized"))
		return
	}

	resp := introspection{
		Active:    true,
		TokenType: "Bearer",
		Me:        rec.Me,
		Sub:       rec.Me,
		ClientID:  rec.ClientID,
		Scope:     rec.Scope,
		IssuedAt:  rec.Created.Unix(),
	}
	if rec.Revoked != nil {
		resp.ExpiresAt = rec.Revoked.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

type grantResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Me          string `json:"me"`
}

func (a *App) handleGrant(w http.ResponseWriter, r *http.Request) {
	f := r.PostForm
	code, clientID, redirectURI := f.Get("code"), f.Get("client_id"), f.Get("redirect_uri")
	switch {
	case f.Get("grant_type") != "authorization_code":
		a.invalidRequest(w, "unsupported grant_type")
		return
	case !printableAll.MatchString(code):
		a.invalidRequest(w, "missing or malformed code")
		return
	case !validate.URL(clientID):
		a.invalidRequest(w, "missing or malformed client_id")
		return
	case !validate.URL(redirectURI):
		a.invalidRequest(w, "missing or malformed redirect_uri")
		return
	}

	res, err := a.exchange.Exchange(r.Context(), code, clientID, redirectURI)
	if errors.Is(err, exchange.ErrNotAccepted) {
		a.invalidRequest(w, "no trusted endpoint accepted the code", zap.String("client_id", clientID))
		return
	}
	if err != nil {
		a.serverError(w, "exchange code", err)
		return
	}

	tok, err := a.tokens.Mint(r.Context(), res.Me, clientID, res.Scope)
	if err != nil {
		a.serverError(w, "mint token", err)
		return
	}
	a.log.Info("token issued",
		zap.String("me", res.Me),
		zap.String("client_id", clientID),
		zap.String("endpoint", res.Endpoint),
	)
	writeJSON(w, http.StatusOK, grantResponse{
		AccessToken: tok.String(),
		TokenType:   "Bearer",
		Scope:       res.Scope,
		Me:          res.Me,
	})
}
