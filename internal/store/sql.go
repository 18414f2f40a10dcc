package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// dialect carries the statements that differ between SQLite and PostgreSQL.
type dialect struct {
	insertToken   string
	getToken      string
	markUsed      string
	revoke        string
	endpoints     string
	addEndpoint   string
	logins        string
	login         string
	putLogin      string
	isDuplicateID func(error) bool
}

// sqlDB implements DB over database/sql for either dialect.
type sqlDB struct {
	db *sql.DB
	q  dialect
}

func (s *sqlDB) InsertToken(ctx context.Context, t *Token) error {
	_, err := s.db.ExecContext(ctx, s.q.insertToken,
		t.ID, t.Hash, t.Me, t.ClientID, t.Scope, t.Created.Unix(), unixOrNil(t.LastUse), unixOrNil(t.Revoked))
	if err != nil {
		if s.q.isDuplicateID(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *sqlDB) GetToken(ctx context.Context, id string) (*Token, error) {
	var (
		t       Token
		created int64
		lastUse sql.NullInt64
		revoked sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.q.getToken, id).
		Scan(&t.ID, &t.Hash, &t.Me, &t.ClientID, &t.Scope, &created, &lastUse, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	t.Created = time.Unix(created, 0).UTC()
	if lastUse.Valid {
		t.LastUse = timeOrNil(&lastUse.Int64)
	}
	if revoked.Valid {
		t.Revoked = timeOrNil(&revoked.Int64)
	}
	return &t, nil
}

func (s *sqlDB) MarkTokenUsed(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q.markUsed, at.Unix(), id); err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return nil
}

func (s *sqlDB) RevokeToken(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q.revoke, at.Unix(), id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *sqlDB) TrustedEndpoints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.endpoints, endpointSetting)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqlDB) AddTrustedEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, s.q.addEndpoint, endpointSetting, endpoint); err != nil {
		return fmt.Errorf("add endpoint: %w", err)
	}
	return nil
}

func (s *sqlDB) Logins(ctx context.Context, appURL string) ([]*Login, error) {
	rows, err := s.db.QueryContext(ctx, s.q.logins, appURL)
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}
	defer rows.Close()
	var out []*Login
	for rows.Next() {
		var l Login
		if err := rows.Scan(&l.AppURL, &l.UserURL, &l.AppKey, &l.UserHash); err != nil {
			return nil, fmt.Errorf("scan login: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *sqlDB) Login(ctx context.Context, appURL, userURL string) (*Login, error) {
	var l Login
	err := s.db.QueryRowContext(ctx, s.q.login, appURL, userURL).Scan(&l.AppURL, &l.UserURL, &l.AppKey, &l.UserHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get login: %w", err)
	}
	return &l, nil
}

func (s *sqlDB) PutLogin(ctx context.Context, l *Login) error {
	if _, err := s.db.ExecContext(ctx, s.q.putLogin, l.AppURL, l.UserURL, l.AppKey, l.UserHash); err != nil {
		return fmt.Errorf("put login: %w", err)
	}
	return nil
}

func (s *sqlDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlDB) Close() error                   { return s.db.Close() }
