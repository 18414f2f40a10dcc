package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemDB keeps everything in process memory. Timestamps are truncated to
// whole seconds to match the SQL adapters.
type MemDB struct {
	mu        sync.Mutex
	tokens    map[string]*Token
	endpoints []string
	logins    map[[2]string]*Login
}

func NewMemoryDB() *MemDB {
	return &MemDB{tokens: map[string]*Token{}, logins: map[[2]string]*Login{}}
}

func (m *MemDB) InsertToken(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.ID]; ok {
		return ErrDuplicateID
	}
	cp := *t
	cp.Created = t.Created.Truncate(time.Second)
	m.tokens[t.ID] = &cp
	return nil
}

func (m *MemDB) GetToken(_ context.Context, id string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *MemDB) MarkTokenUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.Truncate(time.Second)
	if t, ok := m.tokens[id]; ok && (t.LastUse == nil || t.LastUse.Before(at)) {
		t.LastUse = &at
	}
	return nil
}

func (m *MemDB) RevokeToken(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.Truncate(time.Second)
	if t, ok := m.tokens[id]; ok && (t.Revoked == nil || t.Revoked.After(at)) {
		t.Revoked = &at
	}
	return nil
}

func (m *MemDB) TrustedEndpoints(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.endpoints...), nil
}

func (m *MemDB) AddTrustedEndpoint(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = append(m.endpoints, endpoint)
	return nil
}

func (m *MemDB) Logins(_ context.Context, appURL string) ([]*Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Login
	for k, l := range m.logins {
		if k[0] == appURL {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserURL < out[j].UserURL })
	return out, nil
}

func (m *MemDB) Login(_ context.Context, appURL, userURL string) (*Login, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logins[[2]string{appURL, userURL}]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *MemDB) PutLogin(_ context.Context, l *Login) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.logins[[2]string{l.AppURL, l.UserURL}] = &cp
	return nil
}

func (m *MemDB) Ping(context.Context) error { return nil }
func (m *MemDB) Close() error               { return nil }
