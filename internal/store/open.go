package store

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/config"
)

// Open connects the adapter named by c.DBAdapter. PostgreSQL schemas are
// migrated first; SQLite creates its tables on open.
func Open(c *config.Config, log *zap.Logger) (DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		if dir := filepath.Dir(c.SQLiteFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("sqlite directory: %w", err)
			}
		}
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
		log.Info("using sqlite database", zap.String("file", c.SQLiteFile))
		return s, nil
	case "postgres":
		log.Info("applying database migrations")
		if err := ApplyMigrations(c.PostgresDSN, log); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		p, err := NewPostgresDB(c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		log.Info("connected to postgres database")
		return p, nil
	case "memory":
		log.Warn("using in-memory database, all tokens are lost on restart")
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}
}
