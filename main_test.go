package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/selfauth/selfauth/internal/authorize"
	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/store"
)

const (
	alice    = "https://alice.example/"
	password = "wonderland"
)

// spyStore counts MarkTokenUsed calls.
type spyStore struct {
	*store.MemDB
	mu       sync.Mutex
	markUsed int
}

func (s *spyStore) MarkTokenUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	s.markUsed++
	s.mu.Unlock()
	return s.MemDB.MarkTokenUsed(ctx, id, at)
}

func (s *spyStore) markUsedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markUsed
}

type testEnv struct {
	app      *App
	db       *spyStore
	handler  http.Handler
	srv      *httptest.Server
	clientID string
	redirect string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{db: &spyStore{MemDB: store.NewMemoryDB()}}

	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.handler.ServeHTTP(w, r)
	}))
	t.Cleanup(env.srv.Close)

	client := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"client_name":"Test Client","client_uri":"https://client.example/"}`))
	}))
	t.Cleanup(client.Close)
	env.clientID = client.URL + "/"
	env.redirect = client.URL + "/callback"

	c := &config.Config{
		Issuer:             env.srv.URL,
		AuthPath:           "/auth",
		TokenPath:          "/token",
		ExchangeTimeout:    300 * time.Millisecond,
		ConnectTimeout:     300 * time.Millisecond,
		MetadataTimeout:    300 * time.Millisecond,
		LoginRatePerMinute: 5,
		BcryptCost:         bcrypt.MinCost,
	}
	env.app = newApp(c, env.db, zap.NewNop())
	env.handler = env.app.routes()

	l, err := authorize.NewLogin(c.AuthEndpoint(), alice, password)
	require.NoError(t, err)
	require.NoError(t, env.db.PutLogin(context.Background(), l))
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (e *testEnv) authQuery(scope string) url.Values {
	return url.Values{
		"me":            {alice},
		"client_id":     {e.clientID},
		"redirect_uri":  {e.redirect},
		"state":         {"s1"},
		"response_type": {"code"},
		"scope":         {scope},
	}
}

var csrfField = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

// login walks the browser side of the flow and returns the redirect target.
func (e *testEnv) login(t *testing.T, q url.Values, scopes ...string) *url.URL {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := csrfField.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2)

	rec = e.do(formRequest(http.MethodPost, "/auth?"+q.Encode(), url.Values{
		"password": {password},
		"_csrf":    {m[1]},
		"scopes[]": scopes,
	}))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}
