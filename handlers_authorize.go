package main

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/authorize"
	"github.com/selfauth/selfauth/internal/negotiate"
)

type loginPage struct {
	Action      string
	ClientID    string
	RedirectURI string
	UserURL     string
	CSRF        string
	Scopes      []string
	Client      *authorize.ClientInfo
}

// HandleAuthorize is the authorization endpoint. GET shows the login form;
// POST either submits it or, when a code is posted, verifies that code for a
// token endpoint.
func (a *App) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.showLogin(w, r)
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			a.errorPage(w, http.StatusBadRequest, "Faulty Request", "The request body could not be read.")
			return
		}
		if r.PostForm.Has("code") {
			a.verifyCode(w, r)
			return
		}
		a.submitLogin(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *App) parseAuthRequest(w http.ResponseWriter, r *http.Request) (*authorize.Request, bool) {
	req, err := authorize.ParseRequest(r.URL.Query())
	if err != nil {
		var verr *authorize.ValidationError
		if errors.As(err, &verr) {
			a.log.Info("rejected authorization request", zap.String("field", verr.Field))
		}
		a.errorPage(w, http.StatusBadRequest, "Faulty Request", "There was an error with the request.")
		return nil, false
	}
	return req, true
}

func (a *App) showLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := a.parseAuthRequest(w, r)
	if !ok {
		return
	}
	consent, err := a.auth.Begin(r.Context(), req)
	if errors.Is(err, authorize.ErrUnknownLogin) {
		a.errorPage(w, http.StatusBadRequest, "Unknown User", "This server does not log in the requested user.")
		return
	}
	if err != nil {
		a.serverError(w, "begin authorization", err)
		return
	}

	page := loginPage{
		Action:      r.URL.RequestURI(),
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		UserURL:     consent.UserURL,
		CSRF:        consent.CSRF,
		Scopes:      req.Scopes(),
		Client:      consent.Client,
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	if err := loginTmpl.Execute(w, page); err != nil {
		a.log.Warn("render login form", zap.Error(err))
	}
}

func (a *App) submitLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientIP(r)) {
		a.errorPage(w, http.StatusTooManyRequests, "Too Many Attempts", "Please wait a moment before trying again.")
		return
	}
	req, ok := a.parseAuthRequest(w, r)
	if !ok {
		return
	}

	sub := authorize.Submission{
		Password:   r.PostForm.Get("password"),
		CSRF:       r.PostForm.Get("_csrf"),
		Scopes:     append(r.PostForm["scopes[]"], r.PostForm["scopes"]...),
		RemoteAddr: clientIP(r),
	}
	location, err := a.auth.Submit(r.Context(), req, sub)
	var verr *authorize.ValidationError
	switch {
	case err == nil:
		http.Redirect(w, r, location, http.StatusFound)
	case errors.As(err, &verr):
		a.errorPage(w, http.StatusBadRequest, "Invalid Scopes", "The scopes provided contained illegal characters.")
	case errors.Is(err, authorize.ErrUnknownLogin):
		a.errorPage(w, http.StatusBadRequest, "Unknown User", "This server does not log in the requested user.")
	case errors.Is(err, authorize.ErrCSRFInvalid):
		a.errorPage(w, http.StatusUnauthorized, "Invalid CSRF Code", "Usually this means you took too long to log in. Please try again.")
	case errors.Is(err, authorize.ErrPasswordInvalid):
		a.errorPage(w, http.StatusUnauthorized, "Login Failed", "Invalid password.")
	default:
		a.serverError(w, "submit login", err)
	}
}

func (a *App) verifyCode(w http.ResponseWriter, r *http.Request) {
	f := r.PostForm
	grant, err := a.auth.VerifyCode(r.Context(), f.Get("code"), f.Get("redirect_uri"), f.Get("client_id"))
	var verr *authorize.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, authorize.ErrCodeInvalid):
		a.errorPage(w, http.StatusBadRequest, "Verification Failed", "Given Code Was Invalid")
		return
	case err != nil:
		a.serverError(w, "verify code", err)
		return
	}

	enc, err := negotiate.Preferred(r.Header.Get("Accept"))
	if err != nil {
		a.errorPage(w, http.StatusNotAcceptable, "No Accepted Response Types",
			"The client accepts neither JSON nor Form encoded responses.")
		return
	}
	if enc == negotiate.Form {
		w.Header().Set("Content-Type", negotiate.MIMEForm)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(url.Values{"me": {grant.Me}, "scope": {grant.Scope}}.Encode()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"me": grant.Me, "scope": grant.Scope})
}
