package authorize

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/selfauth/selfauth/internal/validate"
)

// ValidationError reports a missing or malformed request field. Field is for
// server-side logs only and must not be echoed to the client.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request field %q", e.Field)
}

// Request is the authorization request a client sends the resource owner to.
type Request struct {
	Me           string
	ClientID     string
	RedirectURI  string
	State        string
	HasState     bool
	ResponseType string
	// Scope is empty when the client asked for none.
	Scope string
}

// ParseRequest validates the authorization request parameters in q.
func ParseRequest(q url.Values) (*Request, error) {
	r := &Request{
		Me:           q.Get("me"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		State:        q.Get("state"),
		HasState:     q.Has("state"),
		ResponseType: q.Get("response_type"),
		Scope:        q.Get("scope"),
	}

	switch {
	case !validate.URL(r.Me):
		return nil, &ValidationError{Field: "me"}
	case !validate.URL(r.ClientID):
		return nil, &ValidationError{Field: "client_id"}
	case !validate.URL(r.RedirectURI):
		return nil, &ValidationError{Field: "redirect_uri"}
	case !validate.Printable(r.State):
		return nil, &ValidationError{Field: "state"}
	case r.ResponseType != "" && r.ResponseType != "id" && r.ResponseType != "code":
		return nil, &ValidationError{Field: "response_type"}
	case r.Scope != "" && !validate.Scope(r.Scope):
		return nil, &ValidationError{Field: "scope"}
	}
	return r, nil
}

// Scopes splits the requested scope into its items.
func (r *Request) Scopes() []string {
	return strings.Fields(r.Scope)
}

func (r *Request) csrfMessage() string {
	return r.ClientID + r.RedirectURI + r.State
}

// codeMessage binds an authorization code to the identity it was issued for.
func codeMessage(userURL, redirectURI, clientID string) string {
	return userURL + redirectURI + clientID
}
