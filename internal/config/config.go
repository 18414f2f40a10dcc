package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is assembled once at startup and passed by value to every component.
type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	LogLevel   string
	LogFormat  string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Issuer is the public origin of this deployment, e.g. https://auth.example.com.
	Issuer    string
	AuthPath  string
	TokenPath string

	// RevokeAfter, when non-zero, sets every new token's revocation deadline.
	RevokeAfter time.Duration

	ExchangeTimeout time.Duration
	ConnectTimeout  time.Duration
	MetadataTimeout time.Duration

	LoginRatePerMinute int
	AllowedOrigins     []string
	AuditLoginFailure  bool
	AuditLoginSuccess  bool
	BcryptCost         int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func getenvMillis(key string, def int) (time.Duration, error) {
	raw := getenv(key, strconv.Itoa(def))
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// AuthEndpoint is the absolute URL of the authorization endpoint.
func (c Config) AuthEndpoint() string { return c.Issuer + c.AuthPath }

// TokenEndpoint is the absolute URL of the token endpoint.
func (c Config) TokenEndpoint() string { return c.Issuer + c.TokenPath }

func New() (*Config, error) {
	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "sqlite"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/selfauth.db"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFormat:  getenv("LOG_FORMAT", "json"),
		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "selfauth")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "selfauth")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),

		Issuer:    strings.TrimRight(getenv("ISSUER", ""), "/"),
		AuthPath:  getenv("AUTH_PATH", "/auth"),
		TokenPath: getenv("TOKEN_PATH", "/token"),

		AuditLoginFailure: getenvBool("AUDIT_LOGIN_FAILURE"),
		AuditLoginSuccess: getenvBool("AUDIT_LOGIN_SUCCESS"),
	}

	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	if c.Issuer == "" {
		return nil, errors.New("ISSUER must be set")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" {
		return nil, fmt.Errorf("invalid ISSUER: %s", c.Issuer)
	}
	for _, p := range []string{c.AuthPath, c.TokenPath} {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("endpoint path must start with /: %s", p)
		}
	}

	if raw := os.Getenv("TOKEN_REVOKE_AFTER"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_REVOKE_AFTER: %s", raw)
		}
		c.RevokeAfter = d
	}

	if c.ExchangeTimeout, err = getenvMillis("EXCHANGE_TIMEOUT_MS", 4000); err != nil {
		return nil, err
	}
	if c.ConnectTimeout, err = getenvMillis("CONNECT_TIMEOUT_MS", 2000); err != nil {
		return nil, err
	}
	if c.MetadataTimeout, err = getenvMillis("METADATA_TIMEOUT_MS", 4000); err != nil {
		return nil, err
	}

	if c.LoginRatePerMinute, err = strconv.Atoi(getenv("LOGIN_RATE_PER_MINUTE", "10")); err != nil || c.LoginRatePerMinute <= 0 {
		return nil, fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %s", os.Getenv("LOGIN_RATE_PER_MINUTE"))
	}
	if c.BcryptCost, err = strconv.Atoi(getenv("BCRYPT_COST", "10")); err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %s", os.Getenv("BCRYPT_COST"))
	}

	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.AllowedOrigins = append(c.AllowedOrigins, o)
		}
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
