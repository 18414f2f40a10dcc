package token

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/selfauth/selfauth/internal/store"
)

const (
	me       = "https://alice.example/"
	clientID = "https://app.example/"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newManager(t *testing.T, db store.TokenStore, opts ...Option) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Unix(1_700_000_000, 0).UTC()}
	opts = append([]Option{WithHashCost(bcrypt.MinCost), WithClock(c.Now)}, opts...)
	return NewManager(db, opts...), c
}

func TestMintThenVerifyIsActive(t *testing.T) {
	ctx := context.Background()
	m, c := newManager(t, store.NewMemoryDB())

	tok, err := m.Mint(ctx, me, clientID, "create update")
	require.NoError(t, err)
	assert.Len(t, tok.ID, 64)
	assert.Len(t, tok.Secret, 72)
	assert.NotContains(t, string(tok.Secret), "\x00")

	rec, err := m.Verify(ctx, tok.String())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Active)
	assert.Equal(t, me, rec.Me)
	assert.Equal(t, clientID, rec.ClientID)
	assert.Equal(t, "create update", rec.Scope)
	assert.Equal(t, c.Now(), rec.Created)
	assert.Nil(t, rec.Revoked)
	assert.NotContains(t, rec.Hash, hexOf(tok.Secret))
}

func hexOf(b []byte) string { return Token{Secret: b}.String()[1:] }

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemoryDB()
	m, c := newManager(t, db)

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, tok.String()))
	rec, err := m.Verify(ctx, tok.String())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Active)
	first := *rec.Revoked

	c.Advance(time.Hour)
	require.NoError(t, m.Revoke(ctx, tok.String()))
	rec, err = m.Verify(ctx, tok.String())
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, first, *rec.Revoked)
}

func TestRevokeUnknownOrMalformed(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, store.NewMemoryDB())

	assert.NoError(t, m.Revoke(ctx, strings.Repeat("ab", 32)+"_"+strings.Repeat("cd", 72)))
	assert.ErrorIs(t, m.Revoke(ctx, "not a token"), ErrMalformedToken)
}

func TestVerifyWrongSecretReturnsNone(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, store.NewMemoryDB())

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)

	wrong := Token{ID: tok.ID, Secret: bytes.Repeat([]byte{0x41}, 72)}
	rec, err := m.Verify(ctx, wrong.String())
	require.NoError(t, err)
	assert.Nil(t, rec)

	// the right secret with trailing bytes must not match either
	long := Token{ID: tok.ID, Secret: append(append([]byte{}, tok.Secret...), 0x42)}
	rec, err = m.Verify(ctx, long.String())
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = m.Verify(ctx, "zz_yy")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestRevokeAfterDeadline(t *testing.T) {
	ctx := context.Background()
	m, c := newManager(t, store.NewMemoryDB(), WithRevokeAfter(24*time.Hour))

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)

	rec, err := m.Verify(ctx, tok.String())
	require.NoError(t, err)
	assert.True(t, rec.Active)
	require.NotNil(t, rec.Revoked)
	assert.Equal(t, c.Now().Add(24*time.Hour), *rec.Revoked)

	c.Advance(24 * time.Hour)
	rec, err = m.Verify(ctx, tok.String())
	require.NoError(t, err)
	assert.False(t, rec.Active)

	// an explicit revoke after the deadline keeps the earlier deadline
	c.Advance(time.Hour)
	require.NoError(t, m.Revoke(ctx, tok.String()))
	rec, err = m.Verify(ctx, tok.String())
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(-time.Hour), *rec.Revoked)
}

func TestMarkUsedNeverDecreases(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemoryDB()
	m, c := newManager(t, db)

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)

	c.Advance(time.Minute)
	require.NoError(t, m.MarkUsed(ctx, tok.ID))
	latest := c.Now()

	c.Advance(-30 * time.Second)
	require.NoError(t, m.MarkUsed(ctx, tok.ID))
	require.NoError(t, m.MarkUsed(ctx, tok.ID))

	row, err := db.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, latest, *row.LastUse)

	c.Advance(time.Hour)
	require.NoError(t, m.MarkUsed(ctx, tok.ID))
	row, err = db.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Now(), *row.LastUse)
}

// collidingStore rejects the first n inserts as duplicates.
type collidingStore struct {
	*store.MemDB
	n        int
	attempts int
	err      error
}

func (s *collidingStore) InsertToken(ctx context.Context, t *store.Token) error {
	s.attempts++
	if s.err != nil {
		return s.err
	}
	if s.attempts <= s.n {
		return store.ErrDuplicateID
	}
	return s.MemDB.InsertToken(ctx, t)
}

func TestMintRetriesCollisions(t *testing.T) {
	ctx := context.Background()
	db := &collidingStore{MemDB: store.NewMemoryDB(), n: 9}
	m, _ := newManager(t, db)

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)
	assert.Equal(t, 10, db.attempts)

	rec, err := m.Verify(ctx, tok.String())
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestMintStorageExhausted(t *testing.T) {
	ctx := context.Background()
	db := &collidingStore{MemDB: store.NewMemoryDB(), n: 1000}
	m, _ := newManager(t, db)

	_, err := m.Mint(ctx, me, clientID, "read")
	assert.ErrorIs(t, err, ErrStorageExhausted)
	assert.Equal(t, maxInsertAttempts, db.attempts)
}

func TestMintPropagatesOtherStorageErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	db := &collidingStore{MemDB: store.NewMemoryDB(), err: boom}
	m, _ := newManager(t, db)

	_, err := m.Mint(ctx, me, clientID, "read")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrStorageExhausted))
	assert.Equal(t, 1, db.attempts)
}

type onesReader struct{}

func (onesReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0x01
	}
	return len(p), nil
}

func TestSecretStripsNulBytes(t *testing.T) {
	ctx := context.Background()
	random := io.MultiReader(bytes.NewReader(make([]byte, 200)), onesReader{})
	m, _ := newManager(t, store.NewMemoryDB(), WithRandom(random))

	tok, err := m.Mint(ctx, me, clientID, "read")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x01}, 72), tok.Secret)
	assert.Equal(t, strings.Repeat("01", 32), tok.ID)
}
