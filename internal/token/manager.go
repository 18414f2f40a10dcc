package token

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/selfauth/selfauth/internal/store"
)

const maxInsertAttempts = 10

// Record is a stored token together with its activity at lookup time.
type Record struct {
	store.Token
	Active bool
}

// Manager owns the token lifecycle on top of a store.TokenStore.
type Manager struct {
	db          store.TokenStore
	revokeAfter time.Duration
	cost        int
	now         func() time.Time
	random      io.Reader
	log         *zap.Logger
}

type Option func(*Manager)

// WithRevokeAfter gives every minted token a revocation deadline of creation + d.
func WithRevokeAfter(d time.Duration) Option { return func(m *Manager) { m.revokeAfter = d } }

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) Option { return func(m *Manager) { m.cost = cost } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithRandom replaces crypto/rand as the source of ids and secrets.
func WithRandom(r io.Reader) Option { return func(m *Manager) { m.random = r } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

func NewManager(db store.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		random: rand.Reader,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mint stores a new token for (me, clientID, scope) and returns it. Id
// collisions are retried with a fresh id; any other storage error is returned
// at once.
func (m *Manager) Mint(ctx context.Context, me, clientID, scope string) (Token, error) {
	secret, err := m.newSecret()
	if err != nil {
		return Token{}, fmt.Errorf("generate secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret, m.cost)
	if err != nil {
		return Token{}, fmt.Errorf("hash secret: %w", err)
	}

	now := m.now()
	row := store.Token{
		Hash:     string(hash),
		Me:       me,
		ClientID: clientID,
		Scope:    scope,
		Created:  now,
	}
	if m.revokeAfter > 0 {
		deadline := now.Add(m.revokeAfter)
		row.Revoked = &deadline
	}

	id, err := backoff.Retry(ctx, func() (string, error) {
		id, err := m.newID()
		if err != nil {
			return "", backoff.Permanent(err)
		}
		row.ID = id
		if err := m.db.InsertToken(ctx, &row); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return id, nil
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(maxInsertAttempts),
		backoff.WithNotify(func(err error, _ time.Duration) {
			m.log.Warn("token id collision, retrying", zap.Error(err))
		}),
	)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			return Token{}, fmt.Errorf("%w (%d attempts)", ErrStorageExhausted, maxInsertAttempts)
		}
		return Token{}, err
	}
	return Token{ID: id, Secret: secret}, nil
}

// Verify resolves a token string. It returns (nil, nil) when the id is unknown
// or the secret does not match, and ErrMalformedToken for unparsable input.
func (m *Manager) Verify(ctx context.Context, s string) (*Record, error) {
	t, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if len(t.Secret) != secretBytes {
		return nil, nil
	}
	row, err := m.db.GetToken(ctx, t.ID)
	if err != nil || row == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(row.Hash), t.Secret) != nil {
		return nil, nil
	}
	return &Record{Token: *row, Active: row.ActiveAt(m.now())}, nil
}

// MarkUsed records a successful use. last_use never moves backwards.
func (m *Manager) MarkUsed(ctx context.Context, id string) error {
	return m.db.MarkTokenUsed(ctx, id, m.now())
}

// Revoke deactivates the token now. Unknown tokens and tokens that are
// already inactive are left untouched.
func (m *Manager) Revoke(ctx context.Context, s string) error {
	rec, err := m.Verify(ctx, s)
	if err != nil || rec == nil {
		return err
	}
	return m.db.RevokeToken(ctx, rec.ID, m.now())
}

func (m *Manager) newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// newSecret draws random bytes with NULs removed until secretBytes remain.
func (m *Manager) newSecret() ([]byte, error) {
	buf := make([]byte, secretBytes+28)
	for {
		if _, err := io.ReadFull(m.random, buf); err != nil {
			return nil, err
		}
		if s := bytes.ReplaceAll(buf, []byte{0}, nil); len(s) >= secretBytes {
			return s[:secretBytes], nil
		}
	}
}
