package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/httpclient"
	"github.com/selfauth/selfauth/internal/store"
)

func newExchanger(t *testing.T, timeout time.Duration, endpoints ...string) *Exchanger {
	t.Helper()
	db := store.NewMemoryDB()
	for _, ep := range endpoints {
		require.NoError(t, db.AddTrustedEndpoint(context.Background(), ep))
	}
	client := httpclient.New(httpclient.Options{Timeout: timeout, ConnectTimeout: timeout, MaxRedirects: MaxRedirects})
	return New(db, client, zap.NewNop())
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestExchangeFallsThroughSlowEndpoint(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	var got http.Header
	var form map[string]string
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = r.ParseForm()
		form = map[string]string{
			"code":         r.PostForm.Get("code"),
			"client_id":    r.PostForm.Get("client_id"),
			"redirect_uri": r.PostForm.Get("redirect_uri"),
		}
		respond(`{"me":"https://alice.example/","scope":"create update"}`)(w, r)
	}))
	defer good.Close()

	e := newExchanger(t, 200*time.Millisecond, slow.URL, good.URL)
	res, err := e.Exchange(context.Background(), "c0de", "https://app.example/", "https://app.example/cb")
	require.NoError(t, err)

	assert.Equal(t, &Result{Me: "https://alice.example/", Scope: "create update", Endpoint: good.URL}, res)
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "application/x-www-form-urlencoded", got.Get("Content-Type"))
	assert.Equal(t, map[string]string{
		"code":         "c0de",
		"client_id":    "https://app.example/",
		"redirect_uri": "https://app.example/cb",
	}, form)
}

func TestExchangeFirstAcceptorWins(t *testing.T) {
	var secondCalled bool
	first := httptest.NewServer(respond(`{"me":"https://alice.example/","scope":"read"}`))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalled = true
		respond(`{"me":"https://bob.example/","scope":"read"}`)(w, r)
	}))
	defer second.Close()

	res, err := newExchanger(t, time.Second, first.URL, second.URL).Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "https://alice.example/", res.Me)
	assert.False(t, secondCalled)
}

func TestExchangeRejectsInvalidAnswers(t *testing.T) {
	bodies := map[string]string{
		"not json":      `me=https://alice.example/&scope=read`,
		"array":         `[{"me":"https://alice.example/","scope":"read"}]`,
		"relative me":   `{"me":"/alice","scope":"read"}`,
		"missing me":    `{"scope":"read"}`,
		"numeric me":    `{"me":42,"scope":"read"}`,
		"bad scope":     `{"me":"https://alice.example/","scope":"read  write"}`,
		"missing scope": `{"me":"https://alice.example/"}`,
		"too deep":      `{"me":"https://alice.example/","scope":"read","x":{"y":{"z":1}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(respond(body))
			defer srv.Close()

			_, err := newExchanger(t, time.Second, srv.URL).Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
			assert.ErrorIs(t, err, ErrNotAccepted)
		})
	}
}

func TestExchangeRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"me":"https://alice.example/","scope":"read"}`))
	}))
	defer srv.Close()

	_, err := newExchanger(t, time.Second, srv.URL).Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestExchangeFollowsRedirects(t *testing.T) {
	target := httptest.NewServer(respond(`{"me":"https://alice.example/","scope":"read"}`))
	defer target.Close()
	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	defer hop.Close()

	res, err := newExchanger(t, time.Second, hop.URL).Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "read", res.Scope)
}

func TestExchangeNoEndpoints(t *testing.T) {
	_, err := newExchanger(t, time.Second).Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
	assert.ErrorIs(t, err, ErrNotAccepted)
}

type failingSettings struct{ store.SettingsStore }

func (failingSettings) TrustedEndpoints(context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func TestExchangeStorageError(t *testing.T) {
	e := New(failingSettings{}, http.DefaultClient, zap.NewNop())
	_, err := e.Exchange(context.Background(), "c", "https://app.example/", "https://app.example/cb")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAccepted)
}
