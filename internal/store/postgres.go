package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresDB relies on migrations for its schema.
type PostgresDB struct {
	sqlDB
	dsn string
}

const pqUniqueViolation = "23505"

var postgresDialect = dialect{
	insertToken:   `INSERT INTO tokens(token_id,token_hash,auth_me,auth_client_id,auth_scope,created,last_use,revoked) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
	getToken:      `SELECT token_id,token_hash,auth_me,auth_client_id,auth_scope,created,last_use,revoked FROM tokens WHERE token_id = $1`,
	markUsed:      `UPDATE tokens SET last_use = $1 WHERE token_id = $2 AND (last_use IS NULL OR last_use < $1)`,
	revoke:        `UPDATE tokens SET revoked = $1 WHERE token_id = $2 AND (revoked IS NULL OR revoked > $1)`,
	endpoints:     `SELECT setting_value FROM settings WHERE setting_name = $1 ORDER BY id`,
	addEndpoint:   `INSERT INTO settings(setting_name,setting_value) VALUES($1,$2)`,
	logins:        `SELECT app_url,user_url,app_key,user_hash FROM logins WHERE app_url = $1 ORDER BY user_url`,
	login:         `SELECT app_url,user_url,app_key,user_hash FROM logins WHERE app_url = $1 AND user_url = $2`,
	putLogin:      `INSERT INTO logins(app_url,user_url,app_key,user_hash) VALUES($1,$2,$3,$4) ON CONFLICT (app_url,user_url) DO UPDATE SET app_key = EXCLUDED.app_key, user_hash = EXCLUDED.user_hash`,
	isDuplicateID: isPostgresUniqueViolation,
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return newPostgresDB(d, dsn)
}

func newPostgresDB(d *sql.DB, dsn string) (*PostgresDB, error) {
	p := &PostgresDB{sqlDB: sqlDB{db: d, q: postgresDialect}, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func isPostgresUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == pqUniqueViolation
}
