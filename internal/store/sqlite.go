package store

import (
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteDB is the default single-file adapter.
type SQLiteDB struct {
	sqlDB
	path string
}

var sqliteDialect = dialect{
	insertToken: `INSERT INTO tokens(token_id,token_hash,auth_me,auth_client_id,auth_scope,created,last_use,revoked) VALUES(?,?,?,?,?,?,?,?)`,
	getToken:    `SELECT token_id,token_hash,auth_me,auth_client_id,auth_scope,created,last_use,revoked FROM tokens WHERE token_id = ?`,
	markUsed:    `UPDATE tokens SET last_use = ?1 WHERE token_id = ?2 AND (last_use IS NULL OR last_use < ?1)`,
	revoke:      `UPDATE tokens SET revoked = ?1 WHERE token_id = ?2 AND (revoked IS NULL OR revoked > ?1)`,
	endpoints:   `SELECT setting_value FROM settings WHERE setting_name = ? ORDER BY id`,
	addEndpoint: `INSERT INTO settings(setting_name,setting_value) VALUES(?,?)`,
	logins:      `SELECT app_url,user_url,app_key,user_hash FROM logins WHERE app_url = ? ORDER BY user_url`,
	login:       `SELECT app_url,user_url,app_key,user_hash FROM logins WHERE app_url = ? AND user_url = ?`,
	putLogin: `INSERT INTO logins(app_url,user_url,app_key,user_hash) VALUES(?,?,?,?)
		ON CONFLICT(app_url,user_url) DO UPDATE SET app_key = excluded.app_key, user_hash = excluded.user_hash`,
	isDuplicateID: isSQLiteUniqueViolation,
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; avoids SQLITE_BUSY between pooled connections
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{sqlDB: sqlDB{db: d, q: sqliteDialect}, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			token_id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL,
			auth_me TEXT NOT NULL,
			auth_client_id TEXT NOT NULL,
			auth_scope TEXT NOT NULL,
			created INTEGER NOT NULL,
			last_use INTEGER,
			revoked INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS settings (id INTEGER PRIMARY KEY AUTOINCREMENT, setting_name TEXT NOT NULL, setting_value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS logins (app_url TEXT NOT NULL, user_url TEXT NOT NULL, app_key TEXT NOT NULL, user_hash TEXT NOT NULL, PRIMARY KEY (app_url, user_url));`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
