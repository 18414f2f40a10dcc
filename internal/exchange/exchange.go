// Package exchange asks the trusted authorization endpoints, in storage
// order, to vouch for an authorization code.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/store"
	"github.com/selfauth/selfauth/internal/validate"
)

// MaxRedirects is the redirect budget for a single endpoint call.
const MaxRedirects = 8

const (
	maxDepth = 2
	maxBody  = 64 << 10
)

// ErrNotAccepted means no trusted endpoint vouched for the code.
var ErrNotAccepted = errors.New("exchange: code not accepted by any trusted endpoint")

// Result is what the accepting endpoint reported.
type Result struct {
	Me       string
	Scope    string
	Endpoint string
}

// Exchanger performs the code exchange. Client should carry the timeout and
// redirect limits.
type Exchanger struct {
	settings store.SettingsStore
	client   *http.Client
	log      *zap.Logger
}

func New(settings store.SettingsStore, client *http.Client, log *zap.Logger) *Exchanger {
	return &Exchanger{settings: settings, client: client, log: log}
}

// Exchange returns the first endpoint answer that validates. Per-endpoint
// failures are logged and skipped; only a storage error or running out of
// endpoints fails the call.
func (e *Exchanger) Exchange(ctx context.Context, code, clientID, redirectURI string) (*Result, error) {
	endpoints, err := e.settings.TrustedEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trusted endpoints: %w", err)
	}

	form := url.Values{
		"code":         {code},
		"client_id":    {clientID},
		"redirect_uri": {redirectURI},
	}.Encode()

	for _, endpoint := range endpoints {
		res, err := e.ask(ctx, endpoint, form)
		if err != nil {
			e.log.Info("trusted endpoint did not accept code", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		return res, nil
	}
	return nil, ErrNotAccepted
}

func (e *Exchanger) ask(ctx context.Context, endpoint, form string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, ok := validate.JSONObject(body, maxDepth)
	if !ok {
		return nil, errors.New("response is not a JSON object")
	}
	me, scope := doc.Get("me"), doc.Get("scope")
	if me.Type != gjson.String || !validate.URL(me.Str) {
		return nil, errors.New("invalid me")
	}
	if scope.Type != gjson.String || !validate.Scope(scope.Str) {
		return nil, errors.New("invalid scope")
	}
	return &Result{Me: me.Str, Scope: scope.Str, Endpoint: endpoint}, nil
}
