// Package authorize is the resource-owner side of the protocol: it checks the
// password, protects the login form with a CSRF code, issues signed
// authorization codes and verifies them for the token service.
package authorize

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/signedcode"
	"github.com/selfauth/selfauth/internal/store"
	"github.com/selfauth/selfauth/internal/validate"
)

const (
	csrfTTL = 2 * time.Minute
	codeTTL = 5 * time.Minute

	// noScope is reported for codes issued without any approved scope.
	noScope = "none"
)

var (
	ErrUnknownLogin    = errors.New("authorize: no login for this user")
	ErrCSRFInvalid     = errors.New("authorize: csrf code invalid")
	ErrPasswordInvalid = errors.New("authorize: password invalid")
	ErrCodeInvalid     = errors.New("authorize: authorization code invalid")
)

// Consent is everything the login form needs to render.
type Consent struct {
	*Request
	UserURL string
	CSRF    string
	Client  *ClientInfo
}

// Submission is the resource owner's answer to the login form.
type Submission struct {
	Password string
	CSRF     string
	// Scopes are the items the resource owner approved.
	Scopes     []string
	RemoteAddr string
}

// Grant is what a verified authorization code vouches for.
type Grant struct {
	Me    string
	Scope string
}

// Service runs the authorization flow for the endpoint at AppURL.
type Service struct {
	logins  store.LoginStore
	clients MetadataFetcher
	appURL  string
	issuer  string
	now     func() time.Time
	log     *zap.Logger

	auditFailure bool
	auditSuccess bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetadataFetcher enables client metadata discovery on the login form.
func WithMetadataFetcher(f MetadataFetcher) Option {
	return func(s *Service) { s.clients = f }
}

// WithAudit turns on log entries for failed and successful logins.
func WithAudit(failure, success bool) Option {
	return func(s *Service) {
		s.auditFailure = failure
		s.auditSuccess = success
	}
}

// NewService returns a flow for the authorization endpoint appURL. issuer is
// sent back to clients in the iss redirect parameter.
func NewService(logins store.LoginStore, appURL, issuer string, opts ...Option) *Service {
	s := &Service{
		logins: logins,
		appURL: appURL,
		issuer: issuer,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) signer(l *store.Login) *signedcode.Signer {
	return signedcode.New([]byte(l.AppKey), signedcode.WithClock(s.now))
}

func (s *Service) login(ctx context.Context, me string) (*store.Login, error) {
	l, err := s.logins.Login(ctx, s.appURL, me)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrUnknownLogin
	}
	return l, nil
}

// Begin prepares the login form for r.
func (s *Service) Begin(ctx context.Context, r *Request) (*Consent, error) {
	l, err := s.login(ctx, r.Me)
	if err != nil {
		return nil, err
	}
	csrf, err := s.signer(l).Encode(r.csrfMessage(), csrfTTL, nil)
	if err != nil {
		return nil, err
	}
	c := &Consent{Request: r, UserURL: l.UserURL, CSRF: csrf}
	if s.clients != nil {
		c.Client = s.clients.Fetch(ctx, r.ClientID)
	}
	return c, nil
}

// Submit checks the form answer and returns the URL to redirect the resource
// owner to, carrying a fresh authorization code.
func (s *Service) Submit(ctx context.Context, r *Request, sub Submission) (string, error) {
	l, err := s.login(ctx, r.Me)
	if err != nil {
		return "", err
	}
	signer := s.signer(l)

	if !signer.Verify(r.csrfMessage(), sub.CSRF) {
		return "", ErrCSRFInvalid
	}
	if !checkPassword(l, sub.Password) {
		if s.auditFailure {
			s.log.Warn("login failed", zap.String("remote_addr", sub.RemoteAddr), zap.String("me", l.UserURL))
		}
		return "", ErrPasswordInvalid
	}
	if s.auditSuccess {
		s.log.Info("login succeeded", zap.String("remote_addr", sub.RemoteAddr), zap.String("me", l.UserURL))
	}

	for _, sc := range sub.Scopes {
		if !validate.ScopeToken(sc) {
			return "", &ValidationError{Field: "scopes"}
		}
	}

	code, err := signer.Encode(codeMessage(l.UserURL, r.RedirectURI, r.ClientID), codeTTL, []byte(strings.Join(sub.Scopes, " ")))
	if err != nil {
		return "", err
	}

	v := url.Values{}
	v.Set("code", code)
	v.Set("iss", s.issuer)
	v.Set("me", l.UserURL)
	if r.HasState {
		v.Set("state", r.State)
	}
	sep := "?"
	if strings.Contains(r.RedirectURI, "?") {
		sep = "&"
	}
	return r.RedirectURI + sep + v.Encode(), nil
}

// VerifyCode answers the token service's verification call. Every login of
// this deployment is tried since the code does not name its owner.
func (s *Service) VerifyCode(ctx context.Context, code, redirectURI, clientID string) (*Grant, error) {
	if code == "" || !validate.URL(redirectURI) || !validate.URL(clientID) {
		return nil, &ValidationError{Field: "code"}
	}
	logins, err := s.logins.Logins(ctx, s.appURL)
	if err != nil {
		return nil, err
	}
	for _, l := range logins {
		payload, err := s.signer(l).Decode(codeMessage(l.UserURL, redirectURI, clientID), code)
		if err != nil {
			continue
		}
		g := &Grant{Me: l.UserURL, Scope: string(payload)}
		if g.Scope == "" {
			g.Scope = noScope
		}
		return g, nil
	}
	return nil, ErrCodeInvalid
}
