// Package store persists bearer tokens, the trusted-endpoint settings and the
// resource-owner logins of a deployment. Three adapters share one contract:
// an in-memory map for tests and throwaway runs, SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateID is returned by InsertToken when token_id already exists.
var ErrDuplicateID = errors.New("duplicate token id")

// Token is a persisted bearer token row. The secret half is never stored;
// Hash holds its bcrypt digest.
type Token struct {
	ID       string
	Hash     string
	Me       string
	ClientID string
	Scope    string
	Created  time.Time
	LastUse  *time.Time
	Revoked  *time.Time
}

// ActiveAt reports whether the token is usable at now.
func (t *Token) ActiveAt(now time.Time) bool {
	return t.Revoked == nil || t.Revoked.After(now)
}

// Login is one resource owner registered for a deployment (AppURL).
type Login struct {
	AppURL   string
	UserURL  string
	AppKey   string
	UserHash string
}

// TokenStore holds bearer tokens. Rows are never deleted.
type TokenStore interface {
	InsertToken(ctx context.Context, t *Token) error
	// GetToken returns (nil, nil) when no row matches.
	GetToken(ctx context.Context, id string) (*Token, error)
	// MarkTokenUsed sets last_use = at only if it is unset or earlier.
	MarkTokenUsed(ctx context.Context, id string, at time.Time) error
	// RevokeToken sets revoked = at only if it is unset or later than at.
	RevokeToken(ctx context.Context, id string, at time.Time) error
}

// SettingsStore holds the ordered list of trusted authorization endpoints.
type SettingsStore interface {
	TrustedEndpoints(ctx context.Context) ([]string, error)
	AddTrustedEndpoint(ctx context.Context, endpoint string) error
}

// LoginStore holds resource-owner logins.
type LoginStore interface {
	Logins(ctx context.Context, appURL string) ([]*Login, error)
	// Login returns (nil, nil) when no row matches.
	Login(ctx context.Context, appURL, userURL string) (*Login, error)
	PutLogin(ctx context.Context, l *Login) error
}

// DB is the full storage contract handed to the process entry point.
type DB interface {
	TokenStore
	SettingsStore
	LoginStore
	Ping(ctx context.Context) error
	Close() error
}

const endpointSetting = "endpoint"

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
